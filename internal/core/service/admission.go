package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flipzon/flash-sale/internal/core/domain"
	"github.com/flipzon/flash-sale/internal/pkg/clock"
	"github.com/flipzon/flash-sale/internal/port"
)

const (
	defaultLeaseTTL   = 3 * time.Second
	defaultQuotaLimit = 1

	// Attempts beyond the first when the item lease is held by someone else.
	leaseAcquireRetries = 2
)

var errLeaseHeld = errors.New("lease held by another request")

// AdmissionController decides accept/reject for purchase requests against a
// time-boxed inventory pool. The decision itself is carried by the atomic
// quota and stock primitives; the per-item lease serializes the decision
// window as a second layer and is safe to lose early.
type AdmissionController struct {
	sales    port.SaleRepository
	stock    port.StockLedger
	quota    port.QuotaKeeper
	leases   port.LeaseManager
	recorder *Recorder
	comp     *Compensator
	clk      clock.Clock

	leaseTTL     time.Duration
	defaultLimit int
}

type AdmissionOption func(*AdmissionController)

// WithLeaseTTL overrides the default per-item lease TTL.
func WithLeaseTTL(d time.Duration) AdmissionOption {
	return func(c *AdmissionController) {
		if d > 0 {
			c.leaseTTL = d
		}
	}
}

// WithDefaultQuotaLimit overrides the per-customer limit used when a sale
// carries none of its own.
func WithDefaultQuotaLimit(limit int) AdmissionOption {
	return func(c *AdmissionController) {
		if limit > 0 {
			c.defaultLimit = limit
		}
	}
}

func NewAdmissionController(
	sales port.SaleRepository,
	stock port.StockLedger,
	quota port.QuotaKeeper,
	leases port.LeaseManager,
	recorder *Recorder,
	comp *Compensator,
	clk clock.Clock,
	opts ...AdmissionOption,
) *AdmissionController {
	c := &AdmissionController{
		sales:        sales,
		stock:        stock,
		quota:        quota,
		leases:       leases,
		recorder:     recorder,
		comp:         comp,
		clk:          clk,
		leaseTTL:     defaultLeaseTTL,
		defaultLimit: defaultQuotaLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type PurchaseRequest struct {
	SaleID     string
	CustomerID string
	Quantity   int

	// Nonce distinguishes separate attempts by the same customer. Callers
	// retrying a failed attempt reuse the nonce so the durable record is
	// written exactly once; empty means a fresh attempt.
	Nonce string
}

type PurchaseResult struct {
	Record    domain.TransactionRecord
	Remaining int
}

// Purchase runs the reservation protocol: validate, admit quota, reserve
// stock, record durably, commit. Every step that fails after an earlier
// step applied compensates that step, so a non-nil error always means no
// lasting effect (beyond a FAILED durable record).
func (c *AdmissionController) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	nonce := req.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	now := c.clk.Now()
	sale, err := c.sales.GetActiveSale(ctx, req.SaleID, now)
	if err != nil {
		return nil, fmt.Errorf("sale lookup: %v: %w", err, ErrPersistence)
	}
	if sale == nil {
		return nil, ErrSaleInactive
	}

	limit := sale.PerCustomerLimit
	if limit <= 0 {
		limit = c.defaultLimit
	}

	token, err := c.acquireLease(ctx, sale.ItemID)
	if err != nil {
		return nil, err
	}
	defer c.releaseLease(ctx, sale.ItemID, token)

	_, admitted, err := c.quota.TryAdmit(ctx, req.CustomerID, req.SaleID, req.Quantity, limit)
	if err != nil {
		return nil, fmt.Errorf("quota admit: %v: %w", err, ErrPersistence)
	}
	if !admitted {
		return nil, ErrQuotaExceeded
	}

	remaining, reserved, err := c.stock.TryReserve(ctx, sale.ItemID, req.Quantity)
	if err != nil {
		c.compensate(ctx, token, Compensation{
			ItemID:     sale.ItemID,
			CustomerID: req.CustomerID,
			SaleID:     req.SaleID,
			QuotaQty:   req.Quantity,
		})
		return nil, fmt.Errorf("stock reserve: %v: %w", err, ErrPersistence)
	}
	if !reserved {
		c.compensate(ctx, token, Compensation{
			ItemID:     sale.ItemID,
			CustomerID: req.CustomerID,
			SaleID:     req.SaleID,
			QuotaQty:   req.Quantity,
		})
		return nil, ErrOutOfStock
	}

	undo := Compensation{
		ItemID:     sale.ItemID,
		CustomerID: req.CustomerID,
		SaleID:     req.SaleID,
		StockQty:   req.Quantity,
		QuotaQty:   req.Quantity,
	}

	rec := domain.TransactionRecord{
		ID:         domain.IdempotencyKey(req.CustomerID, req.SaleID, nonce),
		CustomerID: req.CustomerID,
		SaleID:     req.SaleID,
		ItemID:     sale.ItemID,
		Quantity:   req.Quantity,
		Status:     domain.TransactionStatusReserved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, err := c.recorder.Record(ctx, rec)
	if err != nil {
		c.compensate(ctx, token, undo)
		return nil, fmt.Errorf("record reservation: %v: %w", err, ErrPersistence)
	}

	if err := c.recorder.Commit(ctx, stored.ID); err != nil {
		c.compensate(ctx, token, undo)
		if failErr := c.recorder.Abandon(context.WithoutCancel(ctx), stored.ID); failErr != nil {
			log.Warn().Err(failErr).Str("transaction_id", stored.ID).
				Msg("could not mark reservation failed, reconciliation will expire it")
		}
		return nil, fmt.Errorf("commit reservation: %v: %w", err, ErrPersistence)
	}

	stored.Status = domain.TransactionStatusCommitted
	return &PurchaseResult{Record: stored, Remaining: remaining}, nil
}

func (c *AdmissionController) acquireLease(ctx context.Context, itemID string) (string, error) {
	var token string
	attempt := func() error {
		t, ok, err := c.leases.Acquire(ctx, itemID, c.leaseTTL)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("lease acquire: %v: %w", err, ErrPersistence))
		}
		if !ok {
			return errLeaseHeld
		}
		token = t
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, leaseAcquireRetries), ctx))
	if err != nil {
		if errors.Is(err, errLeaseHeld) {
			return "", ErrContended
		}
		return "", err
	}
	return token, nil
}

// releaseLease runs on every exit path. Release is token-checked, so if the
// lease expired and was reacquired elsewhere this does nothing; the TTL
// already covers the crash case.
func (c *AdmissionController) releaseLease(ctx context.Context, itemID, token string) {
	released, err := c.leases.Release(context.WithoutCancel(ctx), itemID, token)
	if err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("lease release failed")
		return
	}
	if !released {
		log.Warn().Str("item_id", itemID).Msg("lease expired before release")
	}
}

// compensate undoes fast-path effects on a context detached from the
// request, so caller cancellation cannot leave a dangling reservation. If
// the lease token no longer owns the item, another request may be inside
// its decision window, so the undo goes to the background queue instead of
// racing it inline.
func (c *AdmissionController) compensate(ctx context.Context, token string, task Compensation) {
	detached := context.WithoutCancel(ctx)

	owned, err := c.leases.Renew(detached, task.ItemID, token, c.leaseTTL)
	if err != nil || !owned {
		c.comp.Enqueue(task)
		return
	}

	if err := c.comp.Apply(detached, &task); err != nil {
		log.Warn().Err(err).Str("item_id", task.ItemID).Msg("inline compensation failed, queueing")
		c.comp.Enqueue(task)
	}
}
