// internal/core/services/inventory.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// Options tunes the inventory service.
type Options struct {
	// MaxConflictRetries bounds how often a mutation is retried after a
	// version conflict before ErrConcurrentModification is returned.
	MaxConflictRetries   int
	RetryInitialInterval time.Duration
	// OperationTimeout is applied to every call; zero disables it.
	OperationTimeout   time.Duration
	AssetDeleteTimeout time.Duration
	AssetPrefix        string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxConflictRetries:   5,
		RetryInitialInterval: 10 * time.Millisecond,
		OperationTimeout:     10 * time.Second,
		AssetDeleteTimeout:   10 * time.Second,
		AssetPrefix:          "images",
	}
}

// InventoryService handles inventory business logic
type InventoryService struct {
	records ports.RecordStore
	assets  ports.AssetStore
	events  ports.EventPublisher
	opts    Options
	logger  *slog.Logger
}

// Statically assert that *InventoryService implements the InventoryService interface.
var _ ports.InventoryService = (*InventoryService)(nil)

// NewInventoryService creates a new inventory service
func NewInventoryService(
	records ports.RecordStore,
	assets ports.AssetStore,
	events ports.EventPublisher,
	opts Options,
	logger *slog.Logger,
) *InventoryService {
	if events == nil {
		events = nopPublisher{}
	}
	if opts.AssetDeleteTimeout <= 0 {
		opts.AssetDeleteTimeout = DefaultOptions().AssetDeleteTimeout
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	return &InventoryService{
		records: records,
		assets:  assets,
		events:  events,
		opts:    opts,
		logger:  logger.With(slog.String("service", "inventory")),
	}
}

// AddItem creates the item with quantity 1 or increments an existing one.
// The asset is uploaded only when the record is created; on increment it is
// ignored.
func (s *InventoryService) AddItem(ctx context.Context, id string, asset *domain.Asset) (*domain.InventoryItem, error) {
	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if asset != nil {
		if err := asset.Validate(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		result      *domain.InventoryItem
		eventType   domain.EventType
		uploadedRef string
	)

	err := s.retry(ctx, id, func() error {
		current, err := s.records.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read item: %w", err))
		}

		if current != nil {
			if asset != nil {
				s.logger.DebugContext(ctx, "ignoring asset on increment",
					slog.String("item_id", id))
			}
			updated, err := s.records.SetMerge(ctx, id, domain.QuantityPatch(current.Quantity+1), current.Version)
			if err != nil {
				return retryable(err, "failed to increment item")
			}
			result, eventType = updated, domain.EventItemIncremented
			return nil
		}

		if asset != nil && uploadedRef == "" {
			ref, err := s.uploadAsset(ctx, asset)
			if err != nil {
				return backoff.Permanent(err)
			}
			uploadedRef = ref
		}

		created, err := s.records.SetMerge(ctx, id, domain.CreatePatch(uploadedRef), 0)
		if err != nil {
			return retryable(err, "failed to create item")
		}
		result, eventType = created, domain.EventItemCreated
		return nil
	})

	// A lost creation race or a failed write leaves the upload unreferenced.
	if uploadedRef != "" && (result == nil || result.AssetRef != uploadedRef) {
		s.discardAsset(ctx, id, uploadedRef)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "added inventory item",
		slog.String("item_id", id),
		slog.Int("quantity", result.Quantity),
		slog.Bool("created", eventType == domain.EventItemCreated))
	s.publish(ctx, domain.NewItemEvent(eventType, result))

	return result, nil
}

// RemoveItem decrements the item. At quantity 1 the record is deleted and a
// best-effort delete is issued for its asset; the returned snapshot then has
// quantity 0. Removing an absent item is a no-op returning nil.
func (s *InventoryService) RemoveItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result, removed *domain.InventoryItem

	err := s.retry(ctx, id, func() error {
		result, removed = nil, nil

		current, err := s.records.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read item: %w", err))
		}
		if current == nil {
			return nil
		}

		if current.Quantity > 1 {
			updated, err := s.records.SetMerge(ctx, id, domain.QuantityPatch(current.Quantity-1), current.Version)
			if err != nil {
				return retryable(err, "failed to decrement item")
			}
			result = updated
			return nil
		}

		if err := s.records.Delete(ctx, id, current.Version); err != nil {
			return retryable(err, "failed to delete item")
		}
		removed = current.Clone()
		removed.Quantity = 0
		result = removed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		s.logger.DebugContext(ctx, "remove on absent item", slog.String("item_id", id))
		return nil, nil
	}

	if removed != nil {
		s.logger.InfoContext(ctx, "deleted inventory item",
			slog.String("item_id", id),
			slog.Bool("has_asset", removed.HasAsset()))
		s.publish(ctx, domain.NewItemEvent(domain.EventItemDeleted, removed))
		if removed.HasAsset() {
			s.discardAsset(ctx, id, removed.AssetRef)
		}
		return removed, nil
	}

	s.logger.InfoContext(ctx, "decremented inventory item",
		slog.String("item_id", id),
		slog.Int("quantity", result.Quantity))
	s.publish(ctx, domain.NewItemEvent(domain.EventItemDecremented, result))

	return result, nil
}

// List returns every current record. Order is not significant.
func (s *InventoryService) List(ctx context.Context) ([]*domain.InventoryItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory items: %w", err)
	}
	return items, nil
}

// Search lists the inventory narrowed by Filter.
func (s *InventoryService) Search(ctx context.Context, query string) ([]*domain.InventoryItem, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(items, query), nil
}

func (s *InventoryService) uploadAsset(ctx context.Context, asset *domain.Asset) (string, error) {
	if s.assets == nil {
		return "", fmt.Errorf("%w: no asset store configured", domain.ErrAssetUpload)
	}

	contentType := asset.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(asset.Data)
	}
	key := path.Join(s.opts.AssetPrefix, uuid.NewString(), asset.BaseName())

	ref, err := s.assets.Upload(ctx, key, bytes.NewReader(asset.Data), contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAssetUpload, err)
	}

	s.logger.DebugContext(ctx, "uploaded asset",
		slog.String("key", key),
		slog.String("asset_ref", ref),
		slog.Int("size", len(asset.Data)))
	return ref, nil
}

// discardAsset deletes ref without failing the caller. It runs detached from
// the caller's cancellation since the record change is already committed.
func (s *InventoryService) discardAsset(ctx context.Context, id, ref string) {
	if s.assets == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AssetDeleteTimeout)
	defer cancel()

	if err := s.assets.Delete(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "failed to delete asset",
			slog.String("item_id", id),
			slog.String("asset_ref", ref),
			slog.String("error", err.Error()))
		s.publish(ctx, domain.Event{
			Type:       domain.EventAssetDeleteFailed,
			ItemID:     id,
			AssetRef:   ref,
			Error:      err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return
	}

	s.logger.DebugContext(ctx, "deleted asset",
		slog.String("item_id", id),
		slog.String("asset_ref", ref))
}

func (s *InventoryService) publish(ctx context.Context, event domain.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			slog.String("event_type", string(event.Type)),
			slog.String("item_id", event.ItemID),
			slog.String("error", err.Error()))
	}
}

func (s *InventoryService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.OperationTimeout)
}

// retry runs op until it succeeds, fails permanently, or the conflict budget
// is spent.
func (s *InventoryService) retry(ctx context.Context, id string, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxConflictRetries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		s.logger.DebugContext(ctx, "version conflict, retrying",
			slog.String("item_id", id),
			slog.Duration("wait", wait))
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrVersionConflict):
		s.logger.WarnContext(ctx, "retry budget exhausted",
			slog.String("item_id", id),
			slog.Int("max_retries", s.opts.MaxConflictRetries))
		return fmt.Errorf("%w: %s", domain.ErrConcurrentModification, id)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("inventory operation aborted: %w", err)
	default:
		return err
	}
}

// retryable keeps version conflicts retryable and stops on anything else.
func retryable(err error, msg string) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	return backoff.Permanent(fmt.Errorf("%s: %w", msg, err))
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }
