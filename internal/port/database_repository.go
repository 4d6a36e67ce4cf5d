package port

import (
	"context"
	"time"

	"github.com/flipzon/flash-sale/internal/core/domain"
)

type SaleRepository interface {
	// GetActiveSale returns the sale only if it admits purchases at now,
	// nil otherwise.
	GetActiveSale(ctx context.Context, saleID string, now time.Time) (*domain.Sale, error)

	// GetSale returns the sale regardless of status, nil if unknown.
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)

	// ListSalesByItem returns every sale selling itemID, any status.
	ListSalesByItem(ctx context.Context, itemID string) ([]domain.Sale, error)
}

type InventoryRepository interface {
	// UpsertInventory records the initial stock baseline for an item.
	UpsertInventory(ctx context.Context, itemID string, initialStock int) error

	// GetInventory returns nil if the item has no baseline.
	GetInventory(ctx context.Context, itemID string) (*domain.Inventory, error)

	ListInventories(ctx context.Context) ([]domain.Inventory, error)
}

type TransactionRepository interface {
	// Record persists rec idempotently: if a record with the same ID already
	// exists, the stored record is returned unchanged and no row is written.
	Record(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error)

	// UpdateStatus transitions id from one status to another. Replaying a
	// transition that already happened is a no-op; any other mismatch is an
	// error.
	UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus) error

	// ListByItemSince returns all records for itemID created at or after
	// since, oldest first.
	ListByItemSince(ctx context.Context, itemID string, since time.Time) ([]domain.TransactionRecord, error)

	GetCheckpoint(ctx context.Context, itemID string) (time.Time, error)
	SaveCheckpoint(ctx context.Context, itemID string, at time.Time) error
}
