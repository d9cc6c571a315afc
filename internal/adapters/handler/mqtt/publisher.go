package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
)

const (
	defaultPrefix = "agenthud"
	publishQoS    = 1
)

// Publisher mirrors agent updates to an MQTT broker. Each agent has a
// retained topic, so a dashboard subscribing late still sees the last
// known state.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// NewPublisher connects to brokerURL.
func NewPublisher(brokerURL string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("agenthud-router-" + uuid.NewString()[:8])
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	logger.Info("Connected to MQTT broker", "broker", brokerURL)
	return newPublisher(client), nil
}

func newPublisher(client mqtt.Client) *Publisher {
	return &Publisher{
		client:  client,
		prefix:  defaultPrefix,
		timeout: 5 * time.Second,
	}
}

func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the retained topic for an agent.
func (p *Publisher) Topic(agentID string) string {
	return fmt.Sprintf("%s/agents/%s", p.prefix, agentID)
}

// PublishAgentUpdate implements ports.EventSink.
func (p *Publisher) PublishAgentUpdate(ctx context.Context, payload []byte, agent domain.Agent) error {
	token := p.client.Publish(p.Topic(agent.ID), publishQoS, true, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt publish %s: timed out", agent.ID)
	}
}

// IsConnected satisfies services.ConnectionChecker.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects, giving in-flight publishes a moment to finish.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
