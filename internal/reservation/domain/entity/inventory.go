package entity

import "time"

// Inventory tracks the fixed pool of units for one SKU across a sale
// window. AvailableCount is derived, never stored independently of its
// three counters, so it can never drift out of sync with them.
type Inventory struct {
	SKU             string    `json:"sku"`
	TotalCount      int       `json:"total_count"`
	ReservedCount   int       `json:"reserved_count"`
	SoldCount       int       `json:"sold_count"`
	Version         int64     `json:"version"`
	SaleWindowStart time.Time `json:"sale_window_start"`
	SaleWindowEnd   time.Time `json:"sale_window_end"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AvailableCount is I1's right-hand side made concrete: total minus
// everything already reserved or sold.
func (i *Inventory) AvailableCount() int {
	return i.TotalCount - i.ReservedCount - i.SoldCount
}
