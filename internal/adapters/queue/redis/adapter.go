package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
)

const (
	UpdatesChannel  = "agenthud:agents:updates"
	AnnounceChannel = "agenthud:agents:announce"
	// LatestKey is a hash of agent id to its last agent_update frame.
	LatestKey = "agenthud:agents:latest"
)

// RedisAdapter mirrors agent updates to redis pub/sub and listens for
// records announced by upstream agents.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(url string) (*RedisAdapter, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisAdapter{client: client}, client, nil
}

func (r *RedisAdapter) Name() string { return "redis" }

// PublishAgentUpdate implements ports.EventSink. The frame is published
// and also stored as the agent's latest state.
func (r *RedisAdapter) PublishAgentUpdate(ctx context.Context, payload []byte, agent domain.Agent) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, LatestKey, agent.ID, payload)
	pipe.Publish(ctx, UpdatesChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", agent.ID, err)
	}
	return nil
}

// SubscribeAnnouncements implements ports.AnnounceSubscriber. The
// returned channel is closed when ctx is cancelled.
func (r *RedisAdapter) SubscribeAnnouncements(ctx context.Context) (<-chan domain.AgentRecord, error) {
	pubsub := r.client.Subscribe(ctx, AnnounceChannel)
	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", AnnounceChannel, err)
	}

	ch := make(chan domain.AgentRecord)
	go func() {
		defer pubsub.Close()
		defer close(ch)

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				record, err := parseAnnouncement(msg.Payload)
				if err != nil {
					logger.Warn("Ignoring announcement", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case ch <- record:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func parseAnnouncement(payload string) (domain.AgentRecord, error) {
	var record domain.AgentRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return domain.AgentRecord{}, fmt.Errorf("decode announcement: %w", err)
	}
	if record.AgentID == "" {
		return domain.AgentRecord{}, domain.ErrMissingID
	}
	return record, nil
}

func (r *RedisAdapter) Close() error {
	return r.client.Close()
}
