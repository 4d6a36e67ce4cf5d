package service

import (
	"context"
	"fmt"

	"github.com/flipzon/flash-sale/internal/port"
)

// StockSeeder sets the initial stock for an item before its sale goes
// active. Not concurrency-sensitive: seeding a live sale is an operator
// error the admission path does not defend against.
type StockSeeder struct {
	inv   port.InventoryRepository
	stock port.StockLedger
}

func NewStockSeeder(inv port.InventoryRepository, stock port.StockLedger) *StockSeeder {
	return &StockSeeder{inv: inv, stock: stock}
}

func (s *StockSeeder) InitStock(ctx context.Context, itemID string, quantity int) error {
	if itemID == "" || quantity < 0 {
		return ErrInvalidQuantity
	}

	// Durable baseline first: reconciliation needs it even if the cache
	// write below never happens.
	if err := s.inv.UpsertInventory(ctx, itemID, quantity); err != nil {
		return fmt.Errorf("record baseline: %v: %w", err, ErrPersistence)
	}
	if err := s.stock.SetStock(ctx, itemID, quantity); err != nil {
		return fmt.Errorf("seed counter: %v: %w", err, ErrPersistence)
	}
	return nil
}
