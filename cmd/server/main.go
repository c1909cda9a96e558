package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamdouble/streamdouble/internal/config"
	"github.com/streamdouble/streamdouble/internal/sse"
	"github.com/streamdouble/streamdouble/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	watch := flag.Bool("watch", false, "Reload the config file when it changes")
	ssePort := flag.Int("sse-port", 0, "Override SSE listener port")
	wsPort := flag.Int("ws-port", 0, "Override WebSocket listener port")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, *ssePort, *wsPort)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	sseServer := sse.NewServer(cfg.SSE)
	wsServer := ws.NewServer(cfg.WebSocket)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// open event streams end with the process context; hijacked sockets are
	// closed by wsServer.Shutdown
	baseContext := func(net.Listener) context.Context { return ctx }
	listeners := []struct {
		name string
		srv  *http.Server
	}{
		{"SSE", &http.Server{Addr: cfg.SSE.Addr(), Handler: sseServer.Handler(), BaseContext: baseContext}},
		{"WebSocket", &http.Server{Addr: cfg.WebSocket.Addr(), Handler: wsServer.Handler(), BaseContext: baseContext}},
	}

	for _, l := range listeners {
		g.Go(func() error {
			log.Printf("%s server listening on %s", l.name, l.srv.Addr)
			if err := l.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s listener: %w", l.name, err)
			}
			return nil
		})
	}

	if *watch {
		current := cfg
		g.Go(func() error {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				// listeners are already bound
				applyFlags(next, current.SSE.Port, current.WebSocket.Port)
				for _, change := range config.Diff(current, next) {
					log.Printf("config: %s", change)
				}
				sseServer.SetConfig(next.SSE)
				wsServer.SetConfig(next.WebSocket)
				current = next
			})
			if err != nil {
				log.Printf("config: reload disabled: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("ws: %v", err)
		}
		for _, l := range listeners {
			if err := l.srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("shutdown %s listener: %v", l.name, err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func applyFlags(cfg *config.Config, ssePort, wsPort int) {
	if ssePort > 0 {
		cfg.SSE.Port = ssePort
	}
	if wsPort > 0 {
		cfg.WebSocket.Port = wsPort
	}
}
