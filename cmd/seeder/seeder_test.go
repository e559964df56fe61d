package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockroom/test/helpers"
	"github.com/ammerola/stockroom/test/mocks"
)

func TestSeeder_SeedWorkbooks(t *testing.T) {
	ctx := context.Background()
	good := helpers.CreateTestWorkbook(t, [][]string{
		{"id", "quantity"},
		{"apple", "2"},
		{"pear", "x"},
	})

	t.Run("applies_and_records_state", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockInventoryService(ctrl)
		svc.EXPECT().AddItem(gomock.Any(), "apple", gomock.Nil()).
			Return(helpers.CreateTestInventoryItem(), nil).Times(2)

		fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		s := &seeder{service: svc, state: &seedState{}, now: func() time.Time { return fixed }, logger: helpers.TestLogger()}

		summary, err := s.seedWorkbooks(ctx, []string{good})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Workbooks)
		assert.Equal(t, 1, summary.Rows)
		assert.Equal(t, 2, summary.UnitsAdded)
		assert.Empty(t, summary.Failed)

		assert.Equal(t, []string{"import.xlsx"}, s.state.ProcessedWorkbooks)
		assert.Equal(t, fixed, s.state.LastUpdate)

		again, err := s.seedWorkbooks(ctx, []string{good})
		require.NoError(t, err)
		assert.Equal(t, []string{"import.xlsx"}, again.Skipped)
		assert.Zero(t, again.UnitsAdded)
	})

	t.Run("failed_row_fails_workbook", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockInventoryService(ctrl)
		svc.EXPECT().AddItem(gomock.Any(), "apple", gomock.Nil()).Return(nil, errors.New("store down"))

		s := &seeder{service: svc, state: &seedState{}, logger: helpers.TestLogger()}

		summary, err := s.seedWorkbooks(ctx, []string{good})
		require.NoError(t, err)
		assert.Equal(t, []string{"import.xlsx"}, summary.Failed)
		assert.Empty(t, s.state.ProcessedWorkbooks)
	})

	t.Run("unreadable_workbook", func(t *testing.T) {
		bad := helpers.CreateTempFile(t, "bad.xlsx", []byte("not a workbook"))
		s := &seeder{state: &seedState{}, dryRun: true, logger: helpers.TestLogger()}

		summary, err := s.seedWorkbooks(ctx, []string{bad})
		require.NoError(t, err)
		assert.Equal(t, []string{"bad.xlsx"}, summary.Failed)
	})

	t.Run("dry_run_counts_only", func(t *testing.T) {
		s := &seeder{state: &seedState{}, dryRun: true, logger: helpers.TestLogger()}

		summary, err := s.seedWorkbooks(ctx, []string{good})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.UnitsAdded)
		assert.Empty(t, s.state.ProcessedWorkbooks)
	})
}

func TestSeeder_SeedSamples(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockInventoryService(ctrl)

	var want int
	for _, row := range sampleRows {
		want += row.Quantity
	}
	svc.EXPECT().AddItem(gomock.Any(), gomock.Any(), gomock.Nil()).
		Return(helpers.CreateTestInventoryItem(), nil).Times(want)

	s := &seeder{service: svc, state: &seedState{}, logger: helpers.TestLogger()}

	summary, err := s.seedSamples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, summary.UnitsAdded)
	assert.True(t, s.state.processed("built-in samples"))
}

func TestSeedState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	state, err := loadState(path)
	require.NoError(t, err)
	assert.Empty(t, state.ProcessedWorkbooks)

	state.markProcessed("a.xlsx", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, state.save(path))

	loaded, err := loadState(path)
	require.NoError(t, err)
	assert.True(t, loaded.processed("a.xlsx"))
	assert.Equal(t, 1, loaded.ProcessedCount)

	corrupt := helpers.CreateTempFile(t, "state.json", []byte("{"))
	_, err = loadState(corrupt)
	assert.Error(t, err)
}

func TestFindWorkbooks(t *testing.T) {
	files, err := findWorkbooks(filepath.Join(t.TempDir(), "missing"), "")
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = findWorkbooks("", "one.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"one.xlsx"}, files)
}
