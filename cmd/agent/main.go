package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenthud.router/internal/agent"
	"agenthud.router/internal/core/logger"
)

// Reports one agent to the router. When stdin is a pipe, directive lines
// from the wrapped process (see agent.ScanUpdates) are forwarded and EOF
// ends the run:
//
//	make build 2>&1 | AGENT_ID=build agenthud-agent
func main() {
	logger.Init(logger.ParseLevel(os.Getenv("LOG_LEVEL")), "text")

	routerURL := os.Getenv("ROUTER_URL")
	if routerURL == "" {
		routerURL = "http://localhost:8787"
	}

	id := os.Getenv("AGENT_ID")
	if id == "" {
		log.Fatal("AGENT_ID environment variable is required")
	}

	token := os.Getenv("TOKEN")
	if token == "" {
		token = "default-token"
	}

	heartbeat := 30 * time.Second
	if v := os.Getenv("HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			heartbeat = d
		}
	}

	a, err := agent.New(agent.Options{
		RouterURL: routerURL,
		Token:     token,
		ID:        id,
		Name:      os.Getenv("AGENT_NAME"),
		Heartbeat: heartbeat,
	})
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	logger.Info("Starting agent reporter", "agent_id", id, "router", routerURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Shutting down agent...")
		cancel()
	}()

	updates := make(chan agent.Update, 16)
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		go func() {
			defer close(updates)
			if err := agent.ScanUpdates(ctx, os.Stdin, updates); err != nil && ctx.Err() == nil {
				logger.Warn("Reading stdin failed", "error", err)
			}
		}()
	}

	if err := a.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Agent error: %v", err)
	}
}
