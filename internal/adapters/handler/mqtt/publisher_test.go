package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"agenthud.router/internal/core/domain"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient records publishes. Methods the publisher never calls fall
// through to the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	token    mqtt.Token
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.qos = qos
	c.retained = retained
	c.payload, _ = payload.([]byte)
	return c.token
}

func (c *fakeClient) IsConnected() bool { return true }

func TestPublishAgentUpdate(t *testing.T) {
	client := &fakeClient{token: completedToken(nil)}
	p := newPublisher(client)

	payload := []byte(`{"type":"agent_update"}`)
	if err := p.PublishAgentUpdate(context.Background(), payload, domain.Agent{ID: "a1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if client.topic != "agenthud/agents/a1" {
		t.Errorf("topic = %q", client.topic)
	}
	if client.qos != publishQoS || !client.retained {
		t.Errorf("qos = %d retained = %v", client.qos, client.retained)
	}
	if string(client.payload) != string(payload) {
		t.Errorf("payload = %s", client.payload)
	}
}

func TestPublishAgentUpdateErrors(t *testing.T) {
	brokerErr := errors.New("not authorized")

	t.Run("broker error", func(t *testing.T) {
		p := newPublisher(&fakeClient{token: completedToken(brokerErr)})
		err := p.PublishAgentUpdate(context.Background(), nil, domain.Agent{ID: "a1"})
		if !errors.Is(err, brokerErr) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		p := newPublisher(&fakeClient{token: &fakeToken{done: make(chan struct{})}})
		p.timeout = 10 * time.Millisecond
		if err := p.PublishAgentUpdate(context.Background(), nil, domain.Agent{ID: "a1"}); err == nil {
			t.Error("expected timeout error")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		p := newPublisher(&fakeClient{token: &fakeToken{done: make(chan struct{})}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := p.PublishAgentUpdate(ctx, nil, domain.Agent{ID: "a1"}); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestName(t *testing.T) {
	p := newPublisher(&fakeClient{})
	if p.Name() != "mqtt" || !p.IsConnected() {
		t.Error("unexpected publisher identity")
	}
}
