// internal/workers/assets_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// SweepResult counts what one sweep saw and did.
type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// AssetSweeper deletes stored assets that no record references. Removing the
// last unit deletes an asset on a best-effort basis, so failed deletes leave
// blobs behind; the sweep collects them.
type AssetSweeper struct {
	records ports.RecordStore
	assets  ports.AssetStore
	events  ports.EventPublisher
	grace   time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewAssetSweeper creates a sweeper. records must read the store directly, not
// through a cache: a stale listing would make referenced assets look orphaned.
// Objects younger than grace are kept so uploads whose record is still being
// created survive.
func NewAssetSweeper(
	records ports.RecordStore,
	assets ports.AssetStore,
	events ports.EventPublisher,
	grace time.Duration,
	logger *slog.Logger,
) *AssetSweeper {
	return &AssetSweeper{
		records: records,
		assets:  assets,
		events:  events,
		grace:   grace,
		now:     time.Now,
		logger:  logger.With(slog.String("processor", "asset_sweep")),
	}
}

// Sweep runs one pass. Objects are listed before records, so any record
// created in between is seen and keeps its asset.
func (s *AssetSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	objects, err := s.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	items, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	referenced := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.HasAsset() {
			referenced[item.AssetRef] = struct{}{}
		}
	}

	result := &SweepResult{Scanned: len(objects)}
	cutoff := s.now().Add(-s.grace)

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := referenced[obj.Ref]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}

		if err := s.assets.Delete(ctx, obj.Ref); err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "failed to delete orphaned asset",
				slog.String("asset_ref", obj.Ref),
				slog.String("error", err.Error()))
			continue
		}
		result.Deleted++

		s.logger.InfoContext(ctx, "deleted orphaned asset",
			slog.String("asset_ref", obj.Ref),
			slog.Int64("size", obj.Size),
			slog.Time("last_modified", obj.LastModified))
		if s.events != nil {
			if err := s.events.Publish(ctx, domain.Event{
				Type:       domain.EventAssetSwept,
				AssetRef:   obj.Ref,
				OccurredAt: s.now().UTC(),
			}); err != nil {
				s.logger.WarnContext(ctx, "failed to publish event", slog.String("error", err.Error()))
			}
		}
	}

	return result, nil
}

// SweepOrphans is the asynq handler for TypeSweepOrphanAssets.
func (s *AssetSweeper) SweepOrphans(ctx context.Context, _ *asynq.Task) error {
	result, err := s.Sweep(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "asset sweep completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.Deleted),
		slog.Int("failed", result.Failed))

	if result.Failed > 0 {
		return fmt.Errorf("failed to delete %d orphaned assets", result.Failed)
	}
	return nil
}
