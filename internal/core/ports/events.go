// internal/core/ports/events.go
package ports

import (
	"context"

	"github.com/ammerola/stockroom/internal/core/domain"
)

// EventPublisher receives inventory lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
