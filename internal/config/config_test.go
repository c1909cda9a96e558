package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestDefaultCadences(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RandomMinDelay", cfg.SSE.RandomMinDelay, time.Second},
		{"RandomMaxDelay", cfg.SSE.RandomMaxDelay, 5 * time.Second},
		{"TextInterval", cfg.SSE.TextInterval, 2 * time.Second},
		{"ReconnectInterval", cfg.SSE.ReconnectInterval, 2 * time.Second},
		{"FiniteInterval", cfg.SSE.FiniteInterval, time.Second},
		{"DisconnectGrace", cfg.SSE.DisconnectGrace, time.Second},
		{"NotifyInterval", cfg.WebSocket.NotifyInterval, 5 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if cfg.SSE.ReconnectLimit != 3 || cfg.SSE.FiniteLimit != 3 {
		t.Errorf("frame limits = %d/%d, want 3/3", cfg.SSE.ReconnectLimit, cfg.SSE.FiniteLimit)
	}
	if want := []string{"chat", "superchat", "notification"}; !reflect.DeepEqual(cfg.WebSocket.Subprotocols, want) {
		t.Errorf("Subprotocols = %v, want %v", cfg.WebSocket.Subprotocols, want)
	}
	if cfg.SSE.Port != 3000 || cfg.WebSocket.Port != 3001 {
		t.Errorf("ports = %d/%d, want 3000/3001", cfg.SSE.Port, cfg.WebSocket.Port)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
sse:
  port: 4000
  text_interval: 500ms
websocket:
  port: 9090
  subprotocols:
    - graphql-ws
    - wamp
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SSE.Port != 4000 {
		t.Errorf("SSE.Port = %d, want 4000", cfg.SSE.Port)
	}
	if cfg.SSE.TextInterval != 500*time.Millisecond {
		t.Errorf("SSE.TextInterval = %v, want 500ms", cfg.SSE.TextInterval)
	}
	if cfg.WebSocket.Port != 9090 {
		t.Errorf("WebSocket.Port = %d, want 9090", cfg.WebSocket.Port)
	}
	if got := strings.Join(cfg.WebSocket.Subprotocols, ","); got != "graphql-ws,wamp" {
		t.Errorf("WebSocket.Subprotocols = %q, want %q", got, "graphql-ws,wamp")
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.SSE.Host != "0.0.0.0" {
		t.Errorf("SSE.Host = %q, want default %q", cfg.SSE.Host, "0.0.0.0")
	}
	if cfg.WebSocket.NotifyInterval != 5*time.Second {
		t.Errorf("WebSocket.NotifyInterval = %v, want default 5s", cfg.WebSocket.NotifyInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.SSE.Port != 3000 {
		t.Errorf("SSE.Port = %d, want default 3000", cfg.SSE.Port)
	}
	if cfg.WebSocket.Port != 3001 {
		t.Errorf("WebSocket.Port = %d, want default 3001", cfg.WebSocket.Port)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "min exceeds max",
			mutate:  func(c *Config) { c.SSE.RandomMinDelay = 5 * time.Second },
			wantErr: "random_min_delay exceeds",
		},
		{
			name:    "zero text interval",
			mutate:  func(c *Config) { c.SSE.TextInterval = 0 },
			wantErr: "sse.text_interval must be positive",
		},
		{
			name:    "zero finite limit",
			mutate:  func(c *Config) { c.SSE.FiniteLimit = 0 },
			wantErr: "sse.finite_limit",
		},
		{
			name:    "empty subprotocol",
			mutate:  func(c *Config) { c.WebSocket.Subprotocols = []string{"chat", ""} },
			wantErr: "websocket.subprotocols[1]",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.WebSocket.Port = 70000 },
			wantErr: "websocket.port",
		},
		{
			name:    "negative notify interval",
			mutate:  func(c *Config) { c.WebSocket.NotifyInterval = -time.Second },
			wantErr: "notify_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sse:\n  finite_limit: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with negative finite_limit should return error")
	}
}

func TestDiffNoChanges(t *testing.T) {
	if changes := Diff(Default(), Default()); len(changes) != 0 {
		t.Errorf("Diff of identical configs = %v, want empty", changes)
	}
}

func TestDiffDetectsChanges(t *testing.T) {
	old := Default()
	new := Default()
	new.SSE.TextInterval = time.Second
	new.WebSocket.Subprotocols = []string{"chat"}

	found := map[string]bool{}
	for _, c := range Diff(old, new) {
		found[c] = true
	}

	want := []string{
		"sse.text_interval: 2s → 1s",
		"websocket.subprotocols: [chat superchat notification] → [chat]",
	}
	for _, w := range want {
		if !found[w] {
			t.Errorf("missing expected change %q", w)
		}
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sse:\n  port: 4000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfgPath, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()

	// give the watcher a moment to register before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("sse:\n  port: 4001\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// a single write can surface as several events (truncate, then data), so
	// wait for the reload that carries the new value
	deadline := time.After(3 * time.Second)
	for got := false; !got; {
		select {
		case cfg := <-reloaded:
			got = cfg.SSE.Port == 4001
		case <-deadline:
			t.Fatal("timed out waiting for reload with sse.port 4001")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() = %v, want nil after cancel", err)
	}
}
