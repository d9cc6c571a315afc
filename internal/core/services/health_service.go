package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"agenthud.router/internal/core/ports"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Latency   string       `json:"latency,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Agents     int                        `json:"agents"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentHealth `json:"components"`
}

// Liveness is the body of GET /health.
type Liveness struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
}

// ConnectionChecker is satisfied by mirrors that hold a broker connection.
type ConnectionChecker interface {
	IsConnected() bool
}

// SubscriberCounter reports how many websocket subscribers are attached.
type SubscriberCounter interface {
	Count() int
}

const pingTimeout = 5 * time.Second

// HealthService reports liveness and the state of optional backends.
// Backends are optional: a nil one is left out of the report, and a
// failing one only degrades it, since the registry keeps serving
// without them.
type HealthService struct {
	source      ports.AgentSource
	subscribers SubscriberCounter
	db          *gorm.DB
	redis       *redis.Client
	mqtt        ConnectionChecker
	version     string
}

func NewHealthService(source ports.AgentSource, version string) *HealthService {
	if version == "" {
		version = "0.0.1"
	}
	return &HealthService{
		source:  source,
		version: version,
	}
}

func (s *HealthService) WithDatabase(db *gorm.DB) *HealthService {
	s.db = db
	return s
}

func (s *HealthService) WithRedis(client *redis.Client) *HealthService {
	s.redis = client
	return s
}

func (s *HealthService) WithMQTT(c ConnectionChecker) *HealthService {
	s.mqtt = c
	return s
}

func (s *HealthService) WithSubscribers(c SubscriberCounter) *HealthService {
	s.subscribers = c
	return s
}

// Liveness never touches optional backends.
func (s *HealthService) Liveness() Liveness {
	return Liveness{Status: "ok", Agents: s.source.Count()}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     HealthStatusHealthy,
		Version:    s.version,
		Agents:     s.source.Count(),
		CheckedAt:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}

	report.Components["registry"] = healthy(fmt.Sprintf("%d agents", report.Agents))
	if s.subscribers != nil {
		report.Components["subscribers"] = healthy(fmt.Sprintf("%d connected", s.subscribers.Count()))
	}

	add := func(name string, h ComponentHealth) {
		report.Components[name] = h
		if h.Status != HealthStatusHealthy {
			report.Status = HealthStatusDegraded
		}
	}

	if s.db != nil {
		add("database", timedCheck(ctx, "database", s.pingDatabase))
	}
	if s.redis != nil {
		add("redis", timedCheck(ctx, "redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}))
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			add("mqtt", healthy(""))
		} else {
			add("mqtt", unhealthy("MQTT broker not connected", 0))
		}
	}

	return report
}

func (s *HealthService) pingDatabase(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// timedCheck runs ping with a timeout and reports its latency.
func timedCheck(ctx context.Context, name string, ping func(context.Context) error) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return unhealthy(fmt.Sprintf("%s ping failed: %v", name, err), latency)
	}
	h := healthy("")
	h.Latency = latency.String()
	return h
}

func healthy(msg string) ComponentHealth {
	return ComponentHealth{Status: HealthStatusHealthy, Message: msg, CheckedAt: time.Now()}
}

func unhealthy(msg string, latency time.Duration) ComponentHealth {
	h := ComponentHealth{Status: HealthStatusUnhealthy, Message: msg, CheckedAt: time.Now()}
	if latency > 0 {
		h.Latency = latency.String()
	}
	return h
}

// SimpleHealthCheck returns a simple health status for load balancers
func (s *HealthService) SimpleHealthCheck(ctx context.Context) (string, int) {
	report := s.CheckHealth(ctx)

	switch report.Status {
	case HealthStatusHealthy:
		return "ok", http.StatusOK
	case HealthStatusDegraded:
		return "degraded", http.StatusOK
	default:
		return "unhealthy", http.StatusServiceUnavailable
	}
}
