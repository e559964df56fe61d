// internal/adapters/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

const itemsTable = "inventory_items"

var itemColumns = []string{"id", "quantity", "asset_ref", "version", "created_at", "updated_at"}

const schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
  id         TEXT PRIMARY KEY CHECK (length(CAST(id AS BLOB)) BETWEEN 1 AND 255),
  quantity   INTEGER NOT NULL CHECK (quantity >= 1),
  asset_ref  TEXT,
  version    INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_created_at ON inventory_items(created_at);
`

// Store implements ports.RecordStore on an embedded SQLite database.
// Timestamps are stored as unix nanoseconds.
type Store struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *slog.Logger
}

// Statically assert that *Store implements the RecordStore interface.
var _ ports.RecordStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(2 * time.Minute)

	s := NewStore(db, logger)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite record store opened", slog.String("path", path))
	return s, nil
}

// NewStore wraps an existing connection without touching the schema.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: logger.With(slog.String("repository", "sqlite_inventory_items")),
	}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record for id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.InventoryItem, error) {
	query, args, err := s.sq.
		Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	return item, nil
}

// SetMerge creates or conditionally updates the record for id.
func (s *Store) SetMerge(ctx context.Context, id string, patch domain.ItemPatch, expectedVersion int64) (*domain.InventoryItem, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().UnixNano()
	returning := "RETURNING " + strings.Join(itemColumns, ", ")

	var (
		query string
		args  []interface{}
		err   error
	)

	if expectedVersion == 0 {
		if patch.Quantity == nil {
			return nil, fmt.Errorf("%w: quantity is required on create", domain.ErrInvalidPatch)
		}
		var assetRef sql.NullString
		if patch.AssetRef != nil {
			assetRef = sql.NullString{String: *patch.AssetRef, Valid: true}
		}
		query, args, err = s.sq.
			Insert(itemsTable).
			Columns(itemColumns...).
			Values(id, *patch.Quantity, assetRef, 1, now, now).
			Suffix("ON CONFLICT(id) DO NOTHING " + returning).
			ToSql()
	} else {
		qb := s.sq.
			Update(itemsTable).
			Set("version", squirrel.Expr("version + 1")).
			Set("updated_at", now)
		if patch.Quantity != nil {
			qb = qb.Set("quantity", *patch.Quantity)
		}
		if patch.AssetRef != nil {
			qb = qb.Set("asset_ref", *patch.AssetRef)
		}
		query, args, err = qb.
			Where(squirrel.Eq{"id": id, "version": expectedVersion}).
			Suffix(returning).
			ToSql()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to write inventory item: %w", err)
	}

	s.logger.DebugContext(ctx, "inventory item written",
		slog.String("item_id", id),
		slog.Int("quantity", item.Quantity),
		slog.Int64("version", item.Version))
	return item, nil
}

// Delete removes the record if its version still matches.
func (s *Store) Delete(ctx context.Context, id string, expectedVersion int64) error {
	query, args, err := s.sq.
		Delete(itemsTable).
		Where(squirrel.Eq{"id": id, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete inventory item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListAll returns every record in creation order.
func (s *Store) ListAll(ctx context.Context) ([]*domain.InventoryItem, error) {
	query, args, err := s.sq.
		Select(itemColumns...).
		From(itemsTable).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.InventoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.InventoryItem, error) {
	item := &domain.InventoryItem{}
	var (
		assetRef         sql.NullString
		created, updated int64
	)

	if err := row.Scan(&item.ID, &item.Quantity, &assetRef, &item.Version, &created, &updated); err != nil {
		return nil, err
	}

	item.AssetRef = assetRef.String
	item.CreatedAt = time.Unix(0, created).UTC()
	item.UpdatedAt = time.Unix(0, updated).UTC()
	return item, nil
}
