package db

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockroom/internal/core/domain"
)

func TestRecordStore_BuildSetMerge(t *testing.T) {
	store := NewRecordStore(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name         string
		patch        domain.ItemPatch
		version      int64
		wantFragment []string
		wantArgs     []interface{}
		wantErr      error
	}{
		{
			name:    "create_without_asset",
			patch:   domain.CreatePatch(""),
			version: 0,
			wantFragment: []string{
				"INSERT INTO inventory_items",
				"ON CONFLICT (id) DO NOTHING",
				"RETURNING id, quantity, asset_ref, version, created_at, updated_at",
			},
			wantArgs: []interface{}{"apple", 1, (*string)(nil), 1, now, now},
		},
		{
			name:    "increment_is_conditional_on_version",
			patch:   domain.QuantityPatch(3),
			version: 2,
			wantFragment: []string{
				"UPDATE inventory_items SET version = version + 1",
				"quantity = $2",
				"WHERE id = $3 AND version = $4",
				"RETURNING id, quantity",
			},
			wantArgs: []interface{}{now, 3, "apple", int64(2)},
		},
		{
			name:    "create_requires_quantity",
			patch:   domain.ItemPatch{},
			version: 0,
			wantErr: domain.ErrInvalidPatch,
		},
		{
			name:    "rejects_zero_quantity",
			patch:   domain.QuantityPatch(0),
			version: 4,
			wantErr: domain.ErrInvalidPatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := store.buildSetMerge("apple", tt.patch, tt.version, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			for _, fragment := range tt.wantFragment {
				assert.Contains(t, query, fragment)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
