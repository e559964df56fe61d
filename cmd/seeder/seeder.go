package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ammerola/stockroom/internal/core/ports"
	"github.com/ammerola/stockroom/internal/workers"
)

// sampleRows is seeded with -samples when no workbooks are available.
var sampleRows = []workers.ImportRow{
	{Line: 1, ID: "apple", Quantity: 3},
	{Line: 2, ID: "pineapple", Quantity: 1},
	{Line: 3, ID: "Green Apple", Quantity: 2},
	{Line: 4, ID: "banana", Quantity: 6},
	{Line: 5, ID: "blood orange", Quantity: 4},
}

// seedState tracks which workbooks were already applied so reruns do not
// add their units twice.
type seedState struct {
	ProcessedWorkbooks []string  `json:"processed_workbooks"`
	ProcessedCount     int       `json:"processed_count"`
	LastUpdate         time.Time `json:"last_update"`
}

func loadState(path string) (*seedState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &seedState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state seedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

func (s *seedState) processed(name string) bool {
	return slices.Contains(s.ProcessedWorkbooks, name)
}

func (s *seedState) markProcessed(name string, now time.Time) {
	s.ProcessedWorkbooks = append(s.ProcessedWorkbooks, name)
	s.ProcessedCount = len(s.ProcessedWorkbooks)
	s.LastUpdate = now
}

func (s *seedState) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

type seedSummary struct {
	Workbooks  int
	Rows       int
	UnitsAdded int
	Skipped    []string
	Failed     []string
}

// seeder applies workbooks through the inventory service. A nil service
// means a dry run: rows are parsed and counted only.
type seeder struct {
	service ports.InventoryService
	state   *seedState
	dryRun  bool
	now     func() time.Time
	logger  *slog.Logger
}

func (s *seeder) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *seeder) seedWorkbooks(ctx context.Context, files []string) (*seedSummary, error) {
	summary := &seedSummary{}

	for i, file := range files {
		name := filepath.Base(file)
		fmt.Printf("PROGRESS: Processing %d/%d: %s\n", i+1, len(files), name)

		if s.state.processed(name) {
			s.logger.Info("Skipping already processed workbook", slog.String("workbook", name))
			summary.Skipped = append(summary.Skipped, name)
			continue
		}

		rows, invalid, err := workers.ReadImportRows(file)
		if err != nil {
			s.logger.Error("Failed to read workbook",
				slog.String("workbook", name),
				slog.String("error", err.Error()))
			summary.Failed = append(summary.Failed, name)
			continue
		}
		for _, rowErr := range invalid {
			s.logger.Warn("Skipping invalid row",
				slog.String("workbook", name),
				slog.String("error", rowErr.Error()))
		}

		units, err := s.apply(ctx, name, rows)
		summary.Rows += len(rows)
		summary.UnitsAdded += units
		if err != nil {
			summary.Failed = append(summary.Failed, name)
			if ctx.Err() != nil {
				return summary, err
			}
			continue
		}

		summary.Workbooks++
		if !s.dryRun {
			s.state.markProcessed(name, s.clock())
		}
		fmt.Printf("SUCCESS: Processed %s - %d rows, %d units\n", name, len(rows), units)
	}

	return summary, nil
}

func (s *seeder) seedSamples(ctx context.Context) (*seedSummary, error) {
	const name = "built-in samples"
	summary := &seedSummary{}

	if s.state.processed(name) {
		summary.Skipped = append(summary.Skipped, name)
		return summary, nil
	}

	units, err := s.apply(ctx, name, sampleRows)
	summary.Rows = len(sampleRows)
	summary.UnitsAdded = units
	if err != nil {
		summary.Failed = append(summary.Failed, name)
		return summary, err
	}

	summary.Workbooks = 1
	if !s.dryRun {
		s.state.markProcessed(name, s.clock())
	}
	return summary, nil
}

// apply returns the number of units added. Any failed row fails the
// workbook, though rows before it stay applied.
func (s *seeder) apply(ctx context.Context, name string, rows []workers.ImportRow) (int, error) {
	if s.service == nil {
		var units int
		for _, row := range rows {
			units += row.Quantity
		}
		return units, nil
	}

	result, err := workers.ApplyImportRows(ctx, s.service, rows)
	if err != nil {
		return result.UnitsAdded, fmt.Errorf("failed to apply %s: %w", name, err)
	}
	for _, rowErr := range result.Errors {
		s.logger.Error("Failed to apply row",
			slog.String("workbook", name),
			slog.String("error", rowErr.Error()))
	}
	if result.Failed() {
		return result.UnitsAdded, fmt.Errorf("%s: %d rows failed", name, len(result.Errors))
	}
	return result.UnitsAdded, nil
}
