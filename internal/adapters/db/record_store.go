// internal/adapters/db/record_store.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

const itemsTable = "inventory_items"

var itemColumns = []string{"id", "quantity", "asset_ref", "version", "created_at", "updated_at"}

// querier is the subset of *Database the record store needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// RecordStore implements ports.RecordStore on PostgreSQL.
type RecordStore struct {
	db     querier
	psql   squirrel.StatementBuilderType
	logger *slog.Logger
}

// Statically assert that *RecordStore implements the RecordStore interface.
var _ ports.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a new record store
func NewRecordStore(db *Database, logger *slog.Logger) *RecordStore {
	return &RecordStore{
		db:     db,
		psql:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: logger.With(slog.String("repository", "inventory_items")),
	}
}

// Get returns the record for id, or nil when absent.
func (r *RecordStore) Get(ctx context.Context, id string) (*domain.InventoryItem, error) {
	query, args, err := r.psql.
		Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := ScanOne(r.db.QueryRow(ctx, query, args...), scanItem)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	return item, nil
}

// SetMerge creates or conditionally updates the record for id.
func (r *RecordStore) SetMerge(ctx context.Context, id string, patch domain.ItemPatch, expectedVersion int64) (*domain.InventoryItem, error) {
	query, args, err := r.buildSetMerge(id, patch, expectedVersion, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	item, err := scanItem(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.DebugContext(ctx, "version conflict",
				slog.String("item_id", id),
				slog.Int64("expected_version", expectedVersion))
			return nil, domain.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to write inventory item: %w", err)
	}

	r.logger.DebugContext(ctx, "inventory item written",
		slog.String("item_id", id),
		slog.Int("quantity", item.Quantity),
		slog.Int64("version", item.Version))

	return item, nil
}

func (r *RecordStore) buildSetMerge(id string, patch domain.ItemPatch, expectedVersion int64, now time.Time) (string, []interface{}, error) {
	if err := patch.Validate(); err != nil {
		return "", nil, err
	}

	returning := "RETURNING " + strings.Join(itemColumns, ", ")

	if expectedVersion == 0 {
		if patch.Quantity == nil {
			return "", nil, fmt.Errorf("%w: quantity is required on create", domain.ErrInvalidPatch)
		}
		return r.psql.
			Insert(itemsTable).
			Columns(itemColumns...).
			Values(id, *patch.Quantity, patch.AssetRef, 1, now, now).
			Suffix("ON CONFLICT (id) DO NOTHING " + returning).
			ToSql()
	}

	qb := r.psql.
		Update(itemsTable).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now)
	if patch.Quantity != nil {
		qb = qb.Set("quantity", *patch.Quantity)
	}
	if patch.AssetRef != nil {
		qb = qb.Set("asset_ref", *patch.AssetRef)
	}

	return qb.
		Where(squirrel.Eq{"id": id, "version": expectedVersion}).
		Suffix(returning).
		ToSql()
}

// Delete removes the record if its version still matches.
func (r *RecordStore) Delete(ctx context.Context, id string, expectedVersion int64) error {
	query, args, err := r.psql.
		Delete(itemsTable).
		Where(squirrel.Eq{"id": id, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	r.logger.DebugContext(ctx, "inventory item deleted", slog.String("item_id", id))
	return nil
}

// ListAll returns every record in creation order.
func (r *RecordStore) ListAll(ctx context.Context) ([]*domain.InventoryItem, error) {
	query, args, err := r.psql.
		Select(itemColumns...).
		From(itemsTable).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory items: %w", err)
	}

	items, err := ScanMany(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("failed to scan inventory items: %w", err)
	}
	return items, nil
}

// Ping checks connectivity.
func (r *RecordStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanItem(row pgx.Row) (*domain.InventoryItem, error) {
	item := &domain.InventoryItem{}
	var assetRef *string

	if err := row.Scan(
		&item.ID,
		&item.Quantity,
		&assetRef,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if assetRef != nil {
		item.AssetRef = *assetRef
	}
	return item, nil
}
