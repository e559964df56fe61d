// internal/core/ports/asset_store.go
package ports

import (
	"context"
	"io"

	"github.com/ammerola/stockroom/internal/core/domain"
)

// AssetStore defines the blob storage port. References returned by Upload
// are opaque retrievable locators accepted back by Delete.
type AssetStore interface {
	Upload(ctx context.Context, name string, data io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
	List(ctx context.Context) ([]domain.AssetObject, error)
}
