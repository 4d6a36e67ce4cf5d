package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusReserved  TransactionStatus = "RESERVED"
	TransactionStatusCommitted TransactionStatus = "COMMITTED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// TransactionRecord is the durable, append-only evidence of a purchase.
// ID is the idempotency key: re-recording the same ID is a no-op.
type TransactionRecord struct {
	ID         string
	CustomerID string
	SaleID     string
	ItemID     string
	Quantity   int
	Status     TransactionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IdempotencyKey derives the durable identifier for one purchase attempt.
// The same (customer, sale, nonce) triple always maps to the same key, so a
// retried recording has exactly one durable effect.
func IdempotencyKey(customerID, saleID, nonce string) string {
	sum := sha256.Sum256([]byte(customerID + "|" + saleID + "|" + nonce))
	return hex.EncodeToString(sum[:])
}
