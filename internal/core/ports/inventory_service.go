// internal/core/ports/inventory_service.go
package ports

import (
	"context"

	"github.com/ammerola/stockroom/internal/core/domain"
)

// InventoryService defines the application service port for inventory.
// This interface is implemented by the application service.
type InventoryService interface {
	// AddItem creates the item with quantity 1, or increments an existing one.
	// The asset is only uploaded on creation.
	AddItem(ctx context.Context, id string, asset *domain.Asset) (*domain.InventoryItem, error)
	// RemoveItem decrements the item, deleting it and its asset at zero.
	// It returns nil when no record existed.
	RemoveItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	List(ctx context.Context) ([]*domain.InventoryItem, error)
	Search(ctx context.Context, query string) ([]*domain.InventoryItem, error)
}
