package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/flipzon/flash-sale/internal/pkg/metrics"
	"github.com/flipzon/flash-sale/internal/port"
)

// Compensation reverses the fast-path effects of a reservation that failed
// after partially applying. A zero quantity means that step needs no undo.
type Compensation struct {
	ItemID     string
	CustomerID string
	SaleID     string
	StockQty   int
	QuotaQty   int
}

// Compensator retries compensations in the background until they succeed or
// the retry budget runs out, at which point reconciliation owns the drift.
type Compensator struct {
	stock port.StockLedger
	quota port.QuotaKeeper
	queue chan Compensation
	wg    sync.WaitGroup
}

func NewCompensator(stock port.StockLedger, quota port.QuotaKeeper, queueSize int) *Compensator {
	return &Compensator{
		stock: stock,
		quota: quota,
		queue: make(chan Compensation, queueSize),
	}
}

func (c *Compensator) Start(workers int) {
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func(id int) {
			defer c.wg.Done()
			c.workerLoop(id)
		}(i)
	}
}

// Close stops accepting work and waits for queued compensations to drain.
func (c *Compensator) Close() {
	close(c.queue)
	c.wg.Wait()
}

// Apply performs each outstanding release once, clearing the field on
// success so a retry never double-applies a step.
func (c *Compensator) Apply(ctx context.Context, task *Compensation) error {
	if task.StockQty > 0 {
		if err := c.stock.Release(ctx, task.ItemID, task.StockQty); err != nil {
			return fmt.Errorf("release stock: %w", err)
		}
		metrics.Compensations.WithLabelValues("stock").Inc()
		task.StockQty = 0
	}

	if task.QuotaQty > 0 {
		if err := c.quota.Release(ctx, task.CustomerID, task.SaleID, task.QuotaQty); err != nil {
			return fmt.Errorf("release quota: %w", err)
		}
		metrics.Compensations.WithLabelValues("quota").Inc()
		task.QuotaQty = 0
	}

	return nil
}

// Enqueue hands a compensation to the background workers. A full queue is
// escalated immediately rather than blocking the request path.
func (c *Compensator) Enqueue(task Compensation) {
	select {
	case c.queue <- task:
	default:
		metrics.CompensationEscalations.Inc()
		log.Error().
			Str("item_id", task.ItemID).
			Str("customer_id", task.CustomerID).
			Int("stock_qty", task.StockQty).
			Int("quota_qty", task.QuotaQty).
			Msg("compensation queue full, deferring to reconciliation")
	}
}

func (c *Compensator) workerLoop(id int) {
	for task := range c.queue {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 50 * time.Millisecond
		bo.MaxInterval = 2 * time.Second
		bo.MaxElapsedTime = 30 * time.Second

		task := task
		err := backoff.Retry(func() error {
			return c.Apply(context.Background(), &task)
		}, bo)
		if err != nil {
			metrics.CompensationEscalations.Inc()
			log.Error().
				Err(err).
				Int("worker", id).
				Str("item_id", task.ItemID).
				Str("customer_id", task.CustomerID).
				Int("stock_qty", task.StockQty).
				Int("quota_qty", task.QuotaQty).
				Msg("compensation abandoned, reconciliation will correct")
		}
	}
}
