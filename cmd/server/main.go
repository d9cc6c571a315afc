package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	grpc_handler "agenthud.router/internal/adapters/handler/grpc"
	http_handler "agenthud.router/internal/adapters/handler/http"
	"agenthud.router/internal/adapters/handler/mqtt"
	redis_adapter "agenthud.router/internal/adapters/queue/redis"
	"agenthud.router/internal/adapters/repository/pg"
	"agenthud.router/internal/config"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
	"agenthud.router/internal/core/services"
	"agenthud.router/internal/core/tracing"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting AgentHUD router", "version", version)

	// Initialize tracing
	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Core
	notifier := services.NewNotifier()
	registry := services.NewRegistry(notifier)
	gateway := services.NewGateway(registry)
	healthService := services.NewHealthService(registry, version)

	hub := http_handler.NewHub(registry)
	notifier.Subscribe(hub)
	healthService.WithSubscribers(hub)
	if cfg.EnableMetrics {
		notifier.Subscribe(http_handler.NewRegistryMetrics())
	}

	// Optional mirrors
	var sinks []ports.EventSink

	var redisAdapter *redis_adapter.RedisAdapter
	if cfg.RedisURL != "" {
		adapter, client, err := redis_adapter.NewRedisAdapter(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to init redis", "error", err)
		} else {
			redisAdapter = adapter
			sinks = append(sinks, adapter)
			healthService.WithRedis(client)
			logger.Info("Redis mirror enabled", "channel", redis_adapter.UpdatesChannel)
		}
	}

	var mqttPublisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		mqttPublisher, err = mqtt.NewPublisher(cfg.MQTTBroker)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else {
			sinks = append(sinks, mqttPublisher)
			healthService.WithMQTT(mqttPublisher)
		}
	}

	if len(sinks) > 0 {
		mirror := services.NewMirror(0, sinks...)
		mirror.OnDrop = http_handler.RecordMirrorDropped
		mirror.OnError = func(sink string, _ error) { http_handler.RecordMirrorError(sink) }
		notifier.Subscribe(mirror)
		goRun(func() { mirror.Run(ctx) })
	}

	// Optional audit trail
	var (
		auditWriter *services.AuditWriter
		repo        *pg.Repository
		opts        = http_handler.Options{
			Token:         cfg.Token,
			RateLimit:     cfg.ActionRateLimit,
			RateBurst:     cfg.ActionRateBurst,
			EnableMetrics: cfg.EnableMetrics,
		}
	)
	if cfg.DatabaseURL != "" {
		repo, err = pg.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to init postgres, action audit disabled", "error", err)
		} else {
			auditWriter = services.NewAuditWriter(repo, 0)
			auditWriter.Start()
			healthService.WithDatabase(repo.DB())
			opts.Auditor = auditWriter
			opts.History = repo
		}
	}

	httpServer := http_handler.NewServer(registry, gateway, healthService, hub, opts)

	// Background tasks
	if redisAdapter != nil {
		goRun(func() {
			if err := services.ConsumeAnnouncements(ctx, redisAdapter, registry); err != nil {
				logger.Error("Announcement consumer failed", "error", err)
			}
		})
	}

	if cfg.SimulatorMode {
		simulator := services.NewSimulator(registry)
		goRun(func() {
			if err := simulator.Run(ctx); err != nil {
				logger.Error("Simulator stopped", "error", err)
			}
		})
	}

	if cfg.AgentStaleAfter > 0 {
		monitor := services.NewAgentMonitor(registry, cfg.AgentStaleAfter)
		goRun(func() { monitor.Start(ctx) })
		goRun(func() { watchAlerts(ctx, monitor) })
	}

	var grpcServer *grpc_handler.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%s", cfg.Host, cfg.GRPCPort))
		if err != nil {
			logger.Error("Failed to listen", "error", err, "port", cfg.GRPCPort)
			log.Fatalf("failed to listen: %v", err)
		}
		grpcServer = grpc_handler.NewServer()
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server failed", "error", err)
			}
		}()
	}

	// Start HTTP Server
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Run(cfg.Addr())
	}()
	printBanner(cfg)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
		stop()
	}

	if grpcServer != nil {
		grpcServer.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}

	wg.Wait()

	if auditWriter != nil {
		auditWriter.Stop()
	}
	if repo != nil {
		repo.Close()
	}
	if mqttPublisher != nil {
		mqttPublisher.Close()
	}
	if redisAdapter != nil {
		redisAdapter.Close()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown tracing", "error", err)
		}
	}
	logger.Info("Shutdown complete")
}

// watchAlerts logs stale-agent alerts and keeps the stale gauge current.
func watchAlerts(ctx context.Context, monitor *services.AgentMonitor) {
	stale := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-monitor.Alerts():
			switch alert.Event {
			case services.AlertStale:
				stale[alert.AgentID] = true
				logger.Warn("Agent stopped reporting", "agent_id", alert.AgentID, "name", alert.AgentName, "idle", alert.Idle)
			case services.AlertActive:
				delete(stale, alert.AgentID)
				logger.Info("Agent reporting again", "agent_id", alert.AgentID, "name", alert.AgentName)
			}
			http_handler.SetStaleAgents(len(stale))
		}
	}
}

func printBanner(cfg *config.Config) {
	ip := lanIP()
	token := cfg.Token
	if len(token) > 8 {
		token = token[:8] + "..."
	}

	logger.Info("AgentHUD router listening",
		"addr", cfg.Addr(),
		"lan_ip", ip,
		"ws_url", fmt.Sprintf("ws://%s:%s/ws", ip, cfg.Port),
		"action_url", fmt.Sprintf("http://%s:%s/action", ip, cfg.Port),
		"token", token,
		"simulator", cfg.SimulatorMode,
	)
	if cfg.SimulatorMode {
		logger.Info("Try an action",
			"example", fmt.Sprintf(`curl -X POST http://localhost:%s/action -H "Content-Type: application/json" -H "%s: %s" -d '{"agent_id":"agent-1","action":"pause"}'`,
				cfg.Port, http_handler.TokenHeader, cfg.Token),
		)
	}
}

// lanIP returns the first non-loopback IPv4 address.
func lanIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "localhost"
}
