// internal/core/ports/record_store.go
package ports

import (
	"context"

	"github.com/ammerola/stockroom/internal/core/domain"
)

// RecordStore defines the persistence port for inventory records.
// Every mutation is a compare-and-swap on the record version.
type RecordStore interface {
	// Get returns the current record, or nil with no error when absent.
	Get(ctx context.Context, id string) (*domain.InventoryItem, error)
	// SetMerge writes the non-nil patch fields. An expectedVersion of 0 creates
	// the record and fails with domain.ErrVersionConflict if it already exists;
	// otherwise the write only applies while the stored version matches.
	SetMerge(ctx context.Context, id string, patch domain.ItemPatch, expectedVersion int64) (*domain.InventoryItem, error)
	// Delete removes the record if the stored version matches.
	Delete(ctx context.Context, id string, expectedVersion int64) error
	ListAll(ctx context.Context) ([]*domain.InventoryItem, error)
	Ping(ctx context.Context) error
}
