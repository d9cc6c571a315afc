package services

import (
	"context"
	"fmt"

	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

// ConsumeAnnouncements upserts every record an upstream agent announces
// until the subscription closes or ctx is cancelled.
func ConsumeAnnouncements(ctx context.Context, sub ports.AnnounceSubscriber, writer ports.AgentWriter) error {
	ch, err := sub.SubscribeAnnouncements(ctx)
	if err != nil {
		return fmt.Errorf("subscribe announcements: %w", err)
	}

	logger.Info("Announcement consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Announcement consumer shutting down")
			return nil
		case record, ok := <-ch:
			if !ok {
				logger.Info("Announcement channel closed")
				return nil
			}
			if _, err := writer.Upsert(ctx, record.Agent()); err != nil {
				logger.Warn("Rejected agent announcement", "agent_id", record.AgentID, "status", record.Status, "error", err)
			}
		}
	}
}
