package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"agenthud.router/internal/core/domain"
)

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }

func TestHealthLiveness(t *testing.T) {
	r := NewRegistry(nil)
	r.Upsert(context.Background(), domain.Agent{ID: "a1", Status: domain.AgentStatusRunning})
	r.Upsert(context.Background(), domain.Agent{ID: "a2", Status: domain.AgentStatusDone})

	got := NewHealthService(r, "").Liveness()
	if got.Status != "ok" || got.Agents != 2 {
		t.Errorf("Liveness() = %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		mqtt     ConnectionChecker
		want     HealthStatus
		wantText string
		wantCode int
	}{
		{"registry only", nil, HealthStatusHealthy, "ok", http.StatusOK},
		{"mqtt up", fakeConn(true), HealthStatusHealthy, "ok", http.StatusOK},
		{"mqtt down", fakeConn(false), HealthStatusDegraded, "degraded", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthService(NewRegistry(nil), "1.2.3")
			if tt.mqtt != nil {
				h.WithMQTT(tt.mqtt)
			}

			report := h.CheckHealth(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if report.Version != "1.2.3" {
				t.Errorf("Version = %s", report.Version)
			}
			if _, ok := report.Components["registry"]; !ok {
				t.Error("registry component missing")
			}

			text, code := h.SimpleHealthCheck(context.Background())
			if text != tt.wantText || code != tt.wantCode {
				t.Errorf("SimpleHealthCheck() = %s %d", text, code)
			}
		})
	}
}

type fakeCounter int

func (f fakeCounter) Count() int { return int(f) }

func TestHealthSubscribers(t *testing.T) {
	report := NewHealthService(NewRegistry(nil), "").WithSubscribers(fakeCounter(3)).CheckHealth(context.Background())

	c, ok := report.Components["subscribers"]
	if !ok {
		t.Fatal("subscribers component missing")
	}
	if c.Message != "3 connected" || c.Status != HealthStatusHealthy {
		t.Errorf("subscribers = %+v", c)
	}
}

func TestHealthTimedCheck(t *testing.T) {
	ok := timedCheck(context.Background(), "redis", func(context.Context) error { return nil })
	if ok.Status != HealthStatusHealthy || ok.Latency == "" {
		t.Errorf("healthy check = %+v", ok)
	}

	failed := timedCheck(context.Background(), "redis", func(context.Context) error { return errors.New("refused") })
	if failed.Status != HealthStatusUnhealthy || failed.Message != "redis ping failed: refused" {
		t.Errorf("failed check = %+v", failed)
	}

	var deadline bool
	timedCheck(context.Background(), "db", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	if !deadline {
		t.Error("the ping should run under a timeout")
	}
}
