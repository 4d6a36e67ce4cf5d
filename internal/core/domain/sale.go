package domain

import "time"

type SaleStatus string

const (
	SaleStatusPending SaleStatus = "PENDING"
	SaleStatusActive  SaleStatus = "ACTIVE"
	SaleStatusEnded   SaleStatus = "ENDED"
)

type Sale struct {
	ID               string
	ItemID           string
	StartTime        time.Time
	EndTime          time.Time
	Status           SaleStatus
	PerCustomerLimit int
}

// AdmitsAt reports whether the sale accepts purchases at the given instant.
func (s Sale) AdmitsAt(now time.Time) bool {
	if s.Status != SaleStatusActive {
		return false
	}
	return !now.Before(s.StartTime) && !now.After(s.EndTime)
}
