// internal/usecase/ports.go
package usecase

import (
	"context"
	"time"

	"wallet-topup-service/internal/domain"

	"go.uber.org/zap"
)

// EventPublisher is satisfied by publisher.KafkaPublisher and
// publisher.NoopPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TopupEvent) error
}

// Clock is swapped in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// publishEvent never fails the caller; events go out after commit.
func publishEvent(ctx context.Context, pub EventPublisher, logger *zap.Logger, event domain.TopupEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(context.WithoutCancel(ctx), event); err != nil {
		eventPublishErrors.Inc()
		logger.Warn("failed to publish topup event",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}
