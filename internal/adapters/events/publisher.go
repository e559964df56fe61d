// internal/adapters/events/publisher.go
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// LogPublisher writes events to the structured log. It is the publisher
// used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(slog.String("component", "events"))}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	level := slog.LevelInfo
	if event.Type == domain.EventAssetDeleteFailed {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.String("item_id", event.ItemID),
		slog.Int("quantity", event.Quantity),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.AssetRef != "" {
		attrs = append(attrs, slog.String("asset_ref", event.AssetRef))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}

	p.logger.LogAttrs(ctx, level, "inventory event", attrs...)
	return nil
}

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []ports.EventPublisher

var _ ports.EventPublisher = Fanout(nil)

// Publish sends event to all publishers, even when an earlier one fails.
func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
