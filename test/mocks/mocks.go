// test/mocks/mocks.go

// Package mocks contains generated mocks for the application's interfaces.
// To regenerate mocks, run `make mocks` from the root directory.
package mocks

//go:generate mockgen -destination=record_store_mock.go -package=mocks github.com/ammerola/stockroom/internal/core/ports RecordStore
//go:generate mockgen -destination=asset_store_mock.go -package=mocks github.com/ammerola/stockroom/internal/core/ports AssetStore
//go:generate mockgen -destination=events_mock.go -package=mocks github.com/ammerola/stockroom/internal/core/ports EventPublisher
//go:generate mockgen -destination=inventory_service_mock.go -package=mocks github.com/ammerola/stockroom/internal/core/ports InventoryService
//go:generate mockgen -destination=cache_mock.go -package=mocks github.com/ammerola/stockroom/internal/core/ports CacheRepository
