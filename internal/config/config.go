package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SSE       SSEConfig       `yaml:"sse"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type SSEConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`

	RandomMinDelay    time.Duration `yaml:"random_min_delay"`
	RandomMaxDelay    time.Duration `yaml:"random_max_delay"`
	TextInterval      time.Duration `yaml:"text_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReconnectLimit    int           `yaml:"reconnect_limit"`
	DisconnectGrace   time.Duration `yaml:"disconnect_grace"`
	FiniteInterval    time.Duration `yaml:"finite_interval"`
	FiniteLimit       int           `yaml:"finite_limit"`
}

type WebSocketConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Subprotocols   []string      `yaml:"subprotocols"`
	NotifyInterval time.Duration `yaml:"notify_interval"`
	CloseGrace     time.Duration `yaml:"close_grace"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given. The values
// are the cadences and limits client test suites are written against.
func Default() *Config {
	return &Config{
		SSE: SSEConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			CORSAllowOrigin:   "*",
			RandomMinDelay:    time.Second,
			RandomMaxDelay:    5 * time.Second,
			TextInterval:      2 * time.Second,
			ReconnectInterval: 2 * time.Second,
			ReconnectLimit:    3,
			DisconnectGrace:   time.Second,
			FiniteInterval:    time.Second,
			FiniteLimit:       3,
		},
		WebSocket: WebSocketConfig{
			Host:           "0.0.0.0",
			Port:           3001,
			Subprotocols:   []string{"chat", "superchat", "notification"},
			NotifyInterval: 5 * time.Second,
			CloseGrace:     2 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var errs []error

	s := c.SSE
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("sse.port %d out of range", s.Port))
	}
	for name, d := range map[string]time.Duration{
		"sse.random_min_delay":   s.RandomMinDelay,
		"sse.random_max_delay":   s.RandomMaxDelay,
		"sse.text_interval":      s.TextInterval,
		"sse.reconnect_interval": s.ReconnectInterval,
		"sse.disconnect_grace":   s.DisconnectGrace,
		"sse.finite_interval":    s.FiniteInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if s.RandomMinDelay > s.RandomMaxDelay {
		errs = append(errs, errors.New("sse.random_min_delay exceeds sse.random_max_delay"))
	}
	if s.ReconnectLimit <= 0 {
		errs = append(errs, errors.New("sse.reconnect_limit must be positive"))
	}
	if s.FiniteLimit <= 0 {
		errs = append(errs, errors.New("sse.finite_limit must be positive"))
	}

	w := c.WebSocket
	if w.Port < 0 || w.Port > 65535 {
		errs = append(errs, fmt.Errorf("websocket.port %d out of range", w.Port))
	}
	for i, p := range w.Subprotocols {
		if p == "" {
			errs = append(errs, fmt.Errorf("websocket.subprotocols[%d] is empty", i))
		}
	}
	if w.NotifyInterval <= 0 {
		errs = append(errs, errors.New("websocket.notify_interval must be positive"))
	}
	if w.CloseGrace <= 0 {
		errs = append(errs, errors.New("websocket.close_grace must be positive"))
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, errors.New("websocket.write_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (c *SSEConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Diff lists human-readable changes between two configs, used when logging a
// reload. Listener addresses are included even though a running listener
// cannot be rebound.
func Diff(old, new *Config) []string {
	var changes []string
	add := func(name string, a, b any) {
		if fmt.Sprint(a) != fmt.Sprint(b) {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", name, a, b))
		}
	}

	add("sse.host", old.SSE.Host, new.SSE.Host)
	add("sse.port", old.SSE.Port, new.SSE.Port)
	add("sse.cors_allow_origin", old.SSE.CORSAllowOrigin, new.SSE.CORSAllowOrigin)
	add("sse.random_min_delay", old.SSE.RandomMinDelay, new.SSE.RandomMinDelay)
	add("sse.random_max_delay", old.SSE.RandomMaxDelay, new.SSE.RandomMaxDelay)
	add("sse.text_interval", old.SSE.TextInterval, new.SSE.TextInterval)
	add("sse.reconnect_interval", old.SSE.ReconnectInterval, new.SSE.ReconnectInterval)
	add("sse.reconnect_limit", old.SSE.ReconnectLimit, new.SSE.ReconnectLimit)
	add("sse.disconnect_grace", old.SSE.DisconnectGrace, new.SSE.DisconnectGrace)
	add("sse.finite_interval", old.SSE.FiniteInterval, new.SSE.FiniteInterval)
	add("sse.finite_limit", old.SSE.FiniteLimit, new.SSE.FiniteLimit)

	add("websocket.host", old.WebSocket.Host, new.WebSocket.Host)
	add("websocket.port", old.WebSocket.Port, new.WebSocket.Port)
	add("websocket.subprotocols", old.WebSocket.Subprotocols, new.WebSocket.Subprotocols)
	add("websocket.notify_interval", old.WebSocket.NotifyInterval, new.WebSocket.NotifyInterval)
	add("websocket.close_grace", old.WebSocket.CloseGrace, new.WebSocket.CloseGrace)
	add("websocket.write_timeout", old.WebSocket.WriteTimeout, new.WebSocket.WriteTimeout)

	return changes
}
