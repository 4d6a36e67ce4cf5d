package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipzon/flash-sale/internal/core/domain"
	"github.com/flipzon/flash-sale/internal/pkg/clock"
	"github.com/flipzon/flash-sale/internal/pkg/metrics"
	"github.com/flipzon/flash-sale/internal/port"
)

const defaultReservedGrace = 30 * time.Second

// Reconciler recomputes the fast-path counters from the durable transaction
// log. Run at process startup: a crash between stock decrement and durable
// commit leaves the counters ahead of durable truth, and the log is the only
// authority on what was actually sold.
type Reconciler struct {
	sales port.SaleRepository
	inv   port.InventoryRepository
	txns  port.TransactionRepository
	stock port.StockLedger
	quota port.QuotaKeeper
	clk   clock.Clock

	// reservedGrace is how long a RESERVED record may stay uncommitted
	// before it is treated as a crash remnant and failed.
	reservedGrace time.Duration
}

type ReconcilerOption func(*Reconciler)

// WithReservedGrace overrides how long an uncommitted reservation survives
// before reconciliation fails it.
func WithReservedGrace(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.reservedGrace = d
		}
	}
}

func NewReconciler(
	sales port.SaleRepository,
	inv port.InventoryRepository,
	txns port.TransactionRepository,
	stock port.StockLedger,
	quota port.QuotaKeeper,
	clk clock.Clock,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		sales:         sales,
		inv:           inv,
		txns:          txns,
		stock:         stock,
		quota:         quota,
		clk:           clk,
		reservedGrace: defaultReservedGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Reconcile(ctx context.Context) error {
	invs, err := r.inv.ListInventories(ctx)
	if err != nil {
		return fmt.Errorf("list inventories: %w", err)
	}

	for _, inv := range invs {
		if err := r.reconcileItem(ctx, inv); err != nil {
			return fmt.Errorf("reconcile item %s: %w", inv.ItemID, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileItem(ctx context.Context, inv domain.Inventory) error {
	now := r.clk.Now()

	lastRun, err := r.txns.GetCheckpoint(ctx, inv.ItemID)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if !lastRun.IsZero() {
		log.Info().Str("item_id", inv.ItemID).Time("last_reconcile", lastRun).
			Msg("reconciling item")
	}

	recs, err := r.txns.ListByItemSince(ctx, inv.ItemID, time.Time{})
	if err != nil {
		return err
	}

	type quotaCell struct {
		saleID     string
		customerID string
	}
	committed := 0
	totals := make(map[quotaCell]int)

	for _, rec := range recs {
		switch rec.Status {
		case domain.TransactionStatusCommitted:
			committed += rec.Quantity
			totals[quotaCell{rec.SaleID, rec.CustomerID}] += rec.Quantity

		case domain.TransactionStatusReserved:
			// A reservation that never committed within the grace period is
			// a crash remnant; fail it so it cannot count as a sale later.
			// Its stock comes back below, since only COMMITTED subtracts.
			if now.Sub(rec.UpdatedAt) > r.reservedGrace {
				if err := r.txns.UpdateStatus(ctx, rec.ID,
					domain.TransactionStatusReserved, domain.TransactionStatusFailed); err != nil {
					return err
				}
				log.Warn().Str("transaction_id", rec.ID).Str("item_id", inv.ItemID).
					Msg("failing stale reservation")
			}
		}
	}

	remaining := inv.InitialStock - committed
	if remaining < 0 {
		metrics.InvariantViolations.Inc()
		log.Error().Str("item_id", inv.ItemID).
			Int("initial_stock", inv.InitialStock).
			Int("committed", committed).
			Msg("committed quantities exceed initial stock, operator intervention required")
		remaining = 0
	}
	if err := r.stock.SetStock(ctx, inv.ItemID, remaining); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}

	limits := make(map[string]int)
	for cell, total := range totals {
		limit, ok := limits[cell.saleID]
		if !ok {
			sale, err := r.sales.GetSale(ctx, cell.saleID)
			if err != nil {
				return fmt.Errorf("get sale %s: %w", cell.saleID, err)
			}
			if sale != nil {
				limit = sale.PerCustomerLimit
			}
			limits[cell.saleID] = limit
		}

		// Durable truth is never reduced to fit the limit; the overrun is
		// surfaced for the operator instead.
		if limit > 0 && total > limit {
			metrics.InvariantViolations.Inc()
			log.Error().Str("sale_id", cell.saleID).Str("customer_id", cell.customerID).
				Int("total", total).Int("limit", limit).
				Msg("customer total exceeds sale quota, operator intervention required")
		}

		if err := r.quota.SetTotal(ctx, cell.customerID, cell.saleID, total); err != nil {
			return fmt.Errorf("set quota: %w", err)
		}
	}

	// A quota counter with nothing durable behind it is a crash remnant: the
	// admit happened but the record never did. Left alone it locks the
	// customer out of the sale, so it is reset along with the rebuilt cells.
	sales, err := r.sales.ListSalesByItem(ctx, inv.ItemID)
	if err != nil {
		return fmt.Errorf("list sales: %w", err)
	}
	for _, sale := range sales {
		customers, err := r.quota.ListCustomers(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("list quota counters for sale %s: %w", sale.ID, err)
		}
		for _, customerID := range customers {
			if _, ok := totals[quotaCell{sale.ID, customerID}]; ok {
				continue
			}
			if err := r.quota.SetTotal(ctx, customerID, sale.ID, 0); err != nil {
				return fmt.Errorf("reset quota: %w", err)
			}
			log.Warn().Str("sale_id", sale.ID).Str("customer_id", customerID).
				Msg("reset quota counter with no durable record")
		}
	}

	return r.txns.SaveCheckpoint(ctx, inv.ItemID, now)
}
