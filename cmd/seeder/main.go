package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ammerola/stockroom/internal/bootstrap"
	"github.com/ammerola/stockroom/internal/core/ports"
	"github.com/ammerola/stockroom/internal/pkg/config"
	"github.com/ammerola/stockroom/internal/pkg/logger"
)

func main() {
	var (
		workbookDir = flag.String("dir", "./seed", "Directory containing .xlsx workbooks")
		file        = flag.String("file", "", "Single workbook to import instead of -dir")
		stateFile   = flag.String("state", "./.seed_state.json", "State file for tracking progress")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		dryRun      = flag.Bool("dry-run", false, "Parse workbooks without modifying the inventory")
		force       = flag.Bool("force", false, "Reprocess all workbooks")
		samples     = flag.Bool("samples", false, "Seed the built-in sample items when no workbooks are found")
	)
	flag.Parse()

	slogger := logger.SetupLogger(*logLevel, "json")
	slog.SetDefault(slogger)

	files, err := findWorkbooks(*workbookDir, *file)
	if err != nil {
		slogger.Error("Failed to find workbooks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	var service ports.InventoryService
	if !*dryRun {
		cfg, err := config.Load(slogger)
		if err != nil {
			slogger.Error("Failed to load configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}

		deps, err := bootstrap.Open(ctx, cfg, slogger)
		if err != nil {
			slogger.Error("Failed to initialize dependencies", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer deps.Close()

		service = bootstrap.NewInventoryService(cfg, deps, slogger)
	}

	state := &seedState{}
	if !*force {
		state, err = loadState(*stateFile)
		if err != nil {
			slogger.Warn("Ignoring unreadable state file", slog.String("error", err.Error()))
			state = &seedState{}
		}
	}

	s := &seeder{service: service, state: state, dryRun: *dryRun, logger: slogger}

	var summary *seedSummary
	if len(files) == 0 && *samples {
		summary, err = s.seedSamples(ctx)
	} else {
		summary, err = s.seedWorkbooks(ctx, files)
	}
	if err != nil {
		slogger.Error("Seed operation interrupted", slog.String("error", err.Error()))
	}

	if !*dryRun {
		if err := state.save(*stateFile); err != nil {
			slogger.Error("Failed to save state", slog.String("error", err.Error()))
		}
	}

	printSummary(summary)

	slogger.Info("Seed operation completed",
		slog.Int("workbooks_processed", summary.Workbooks),
		slog.Int("units_added", summary.UnitsAdded),
		slog.Int("failed_workbooks", len(summary.Failed)))

	if *dryRun {
		fmt.Println("\n[DRY RUN] No changes were made to the inventory")
	}
	if err != nil || len(summary.Failed) > 0 {
		os.Exit(1)
	}
}

func findWorkbooks(dir, file string) ([]string, error) {
	if file != "" {
		return []string{file}, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	return filepath.Glob(filepath.Join(dir, "*.xlsx"))
}

func printSummary(summary *seedSummary) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SEEDING OPERATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Workbooks Processed: %d\n", summary.Workbooks)
	fmt.Printf("Rows Applied: %d\n", summary.Rows)
	fmt.Printf("Units Added: %d\n", summary.UnitsAdded)

	if len(summary.Skipped) > 0 {
		fmt.Printf("\nSkipped (already processed, %d):\n", len(summary.Skipped))
		for _, name := range summary.Skipped {
			fmt.Printf("  - %s\n", name)
		}
	}

	if len(summary.Failed) > 0 {
		fmt.Printf("\nFailed Workbooks (%d):\n", len(summary.Failed))
		for _, name := range summary.Failed {
			fmt.Printf("  - %s\n", name)
		}
	}
}
