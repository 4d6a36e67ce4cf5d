package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flipzon/flash-sale/internal/core/domain"
	"github.com/flipzon/flash-sale/internal/port"
)

const (
	recordRetries         = 2
	recordInitialInterval = 20 * time.Millisecond
	recordMaxInterval     = 200 * time.Millisecond
)

// Recorder persists accepted purchases durably, retrying transient store
// failures with bounded backoff. All writes are idempotent: the repository
// keys records by idempotency key and treats replayed transitions as no-ops.
type Recorder struct {
	txns port.TransactionRepository
}

func NewRecorder(txns port.TransactionRepository) *Recorder {
	return &Recorder{txns: txns}
}

func (r *Recorder) Record(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	var stored domain.TransactionRecord
	attempt := func() error {
		s, err := r.txns.Record(ctx, rec)
		if err != nil {
			return err
		}
		stored = s
		return nil
	}

	if err := backoff.Retry(attempt, r.policy(ctx)); err != nil {
		return domain.TransactionRecord{}, err
	}
	return stored, nil
}

// Commit marks a reserved record committed. Only a committed record counts
// as a sale; callers must treat a Commit failure as a failed purchase.
func (r *Recorder) Commit(ctx context.Context, id string) error {
	attempt := func() error {
		return r.txns.UpdateStatus(ctx, id, domain.TransactionStatusReserved, domain.TransactionStatusCommitted)
	}
	return backoff.Retry(attempt, r.policy(ctx))
}

// Abandon marks a reserved record failed after its fast-path effects were
// compensated, so reconciliation does not resurrect it.
func (r *Recorder) Abandon(ctx context.Context, id string) error {
	attempt := func() error {
		return r.txns.UpdateStatus(ctx, id, domain.TransactionStatusReserved, domain.TransactionStatusFailed)
	}
	return backoff.Retry(attempt, r.policy(ctx))
}

func (r *Recorder) policy(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = recordInitialInterval
	bo.MaxInterval = recordMaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, recordRetries), ctx)
}
