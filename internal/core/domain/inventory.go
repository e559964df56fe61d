// internal/core/domain/inventory.go
package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// MaxIDLength bounds item identifiers to what the record stores index.
const MaxIDLength = 255

// Domain errors
var (
	ErrInvalidID              = errors.New("invalid item id")
	ErrInvalidAsset           = errors.New("invalid asset")
	ErrInvalidPatch           = errors.New("invalid item patch")
	ErrVersionConflict        = errors.New("item version conflict")
	ErrConcurrentModification = errors.New("item modified concurrently, retry budget exhausted")
	ErrAssetUpload            = errors.New("asset upload failed")
)

// InventoryItem represents a single countable entry in the inventory.
// A record exists only while Quantity is at least 1.
type InventoryItem struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	AssetRef  string    `json:"asset_ref,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAsset reports whether an asset was attached at creation.
func (i *InventoryItem) HasAsset() bool {
	return i.AssetRef != ""
}

// Clone returns a copy safe to mutate.
func (i *InventoryItem) Clone() *InventoryItem {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Validate performs domain validation on the stored record
func (i *InventoryItem) Validate() error {
	if err := ValidateID(i.ID); err != nil {
		return err
	}
	if i.Quantity < 1 {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}

// ValidateID checks an item identifier. Identifiers are case-sensitive and
// used verbatim, so surrounding whitespace is significant. They must be
// addressable as one URL path segment.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: id exceeds %d bytes", ErrInvalidID, MaxIDLength)
	}
	// An id is a single path segment in the item routes.
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: id must not contain '/'", ErrInvalidID)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: id must not be %q", ErrInvalidID, id)
	}
	return nil
}

// ItemPatch carries the fields a SetMerge call writes. Nil fields are left
// untouched on update and unset on create.
type ItemPatch struct {
	Quantity *int
	AssetRef *string
}

// QuantityPatch builds a patch that only sets the quantity.
func QuantityPatch(q int) ItemPatch {
	return ItemPatch{Quantity: &q}
}

// CreatePatch builds the patch for a brand new record.
func CreatePatch(assetRef string) ItemPatch {
	p := QuantityPatch(1)
	if assetRef != "" {
		p.AssetRef = &assetRef
	}
	return p
}

// Validate checks the patch values.
func (p ItemPatch) Validate() error {
	if p.Quantity != nil && *p.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidPatch)
	}
	return nil
}

// Apply merges the patch into item.
func (p ItemPatch) Apply(item *InventoryItem) {
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.AssetRef != nil {
		item.AssetRef = *p.AssetRef
	}
}

// Asset is a binary payload supplied when an item is first created.
type Asset struct {
	Name        string
	ContentType string
	Data        []byte
}

// Validate checks the asset carries a name and content.
func (a *Asset) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAsset)
	}
	if len(a.Data) == 0 {
		return fmt.Errorf("%w: asset is empty", ErrInvalidAsset)
	}
	return nil
}

// BaseName returns the file name portion of the asset name.
func (a *Asset) BaseName() string {
	name := path.Base(strings.ReplaceAll(a.Name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "asset"
	}
	return name
}

// AssetObject describes a blob held by an asset store.
type AssetObject struct {
	Ref          string
	Size         int64
	LastModified time.Time
}
