// test/benchmarks/helpers.go
package benchmarks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockroom/internal/core/domain"
)

var itemNames = []string{
	"apple",
	"pineapple",
	"Green Apple",
	"banana",
	"blood orange",
	"pear",
	"plum",
	"fig",
	"kiwi",
	"mango",
}

// createBenchmarkItems builds n items cycling through itemNames with a
// numeric suffix.
func createBenchmarkItems(n int) []*domain.InventoryItem {
	items := make([]*domain.InventoryItem, n)
	for i := range items {
		items[i] = &domain.InventoryItem{
			ID:       fmt.Sprintf("%s-%05d", itemNames[i%len(itemNames)], i),
			Quantity: i%7 + 1,
			Version:  1,
		}
	}
	return items
}

// createImportWorkbook renders n rows in the import layout.
func createImportWorkbook(b *testing.B, n int) []byte {
	b.Helper()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Items")
	if err != nil {
		b.Fatal(err)
	}

	header := sheet.AddRow()
	header.AddCell().SetString("id")
	header.AddCell().SetString("quantity")

	for _, item := range createBenchmarkItems(n) {
		row := sheet.AddRow()
		row.AddCell().SetString(item.ID)
		row.AddCell().SetString(strconv.Itoa(item.Quantity))
	}

	path := filepath.Join(b.TempDir(), "bench.xlsx")
	if err := file.Save(path); err != nil {
		b.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		b.Fatal(err)
	}
	return data
}
