package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chat-relay/relay/internal/config"
	"github.com/chat-relay/relay/internal/frontend"
	"github.com/chat-relay/relay/internal/relay"
	"github.com/chat-relay/relay/internal/session"
	"github.com/chat-relay/relay/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	registry := session.NewRegistry()
	handler := relay.NewHandler(registry, log, relay.Options{
		AutoNickname: cfg.Relay.AutoNickname,
	})

	var static http.Handler
	if cfg.Server.ServeFrontend {
		static = frontend.Handler()
	}
	server := ws.NewServer(cfg, handler, static, log)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, mux, log); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("shut down")
	return nil
}
