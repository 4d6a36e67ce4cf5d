package domain

import "time"

// Inventory is the durable baseline for an item's stock counter. The fast
// path lives in the cache; InitialStock is what reconciliation subtracts
// committed transaction quantities from after a crash.
type Inventory struct {
	ItemID       string
	InitialStock int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
