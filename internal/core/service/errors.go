package service

import "errors"

var (
	// Validation failures, surfaced to the caller and never retried.
	ErrSaleInactive    = errors.New("sale is not active")
	ErrInvalidQuantity = errors.New("invalid quantity")

	// Admission rejections.
	ErrQuotaExceeded = errors.New("customer quota exceeded")
	ErrOutOfStock    = errors.New("out of stock")

	// ErrContended means the item lease stayed held past the retry budget.
	// Retriable by the caller.
	ErrContended = errors.New("item is contended")

	// ErrPersistence wraps store failures after internal retries ran out.
	// Any fast-path effects have been compensated. Retriable by the caller.
	ErrPersistence = errors.New("persistence failure")
)
