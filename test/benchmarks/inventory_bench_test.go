package benchmarks

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ammerola/stockroom/internal/bootstrap"
	"github.com/ammerola/stockroom/internal/core/services"
	"github.com/ammerola/stockroom/internal/handlers"
	"github.com/ammerola/stockroom/internal/workers"
	"github.com/ammerola/stockroom/test/helpers"
)

func BenchmarkInventoryOperations(b *testing.B) {
	cfg := helpers.LoadTestConfig(b)
	cfg.Inventory.MaxConflictRetries = 50

	deps, err := bootstrap.Open(context.Background(), cfg, helpers.TestLogger())
	if err != nil {
		b.Fatal(err)
	}
	defer deps.Close()

	service := bootstrap.NewInventoryService(cfg, deps, helpers.TestLogger())
	ctx := context.Background()

	b.Run("AddNew", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = service.AddItem(ctx, fmt.Sprintf("bench-%d", i), nil)
		}
	})

	b.Run("AddExisting", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = service.AddItem(ctx, "apple", nil)
		}
	})

	b.Run("AddRemove", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = service.AddItem(ctx, "pear", nil)
			_, _ = service.RemoveItem(ctx, "pear")
		}
	})

	b.Run("AddContended", func(b *testing.B) {
		var n atomic.Int64
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				_, _ = service.AddItem(ctx, fmt.Sprintf("hot-%d", n.Add(1)%4), nil)
			}
		})
	})

	b.Run("List", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = service.List(ctx)
		}
	})

	b.Run("Search", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = service.Search(ctx, "BENCH-1")
		}
	})
}

func BenchmarkFilter(b *testing.B) {
	for _, n := range []int{100, 10000} {
		items := createBenchmarkItems(n)

		b.Run(fmt.Sprintf("items_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = services.Filter(items, "APPLE")
			}
		})
	}
}

func BenchmarkImportParsing(b *testing.B) {
	data := createImportWorkbook(b, 1000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := workers.ParseImportWorkbook(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGenerateWorkbook(b *testing.B) {
	items := createBenchmarkItems(1000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := handlers.GenerateWorkbook(items); err != nil {
			b.Fatal(err)
		}
	}
}
