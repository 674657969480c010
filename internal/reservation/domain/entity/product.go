package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is catalog metadata for a sellable SKU. It is armed once before
// a sale window opens and is read-heavy (cached) once the sale is live.
type Product struct {
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	BasePrice  decimal.Decimal `json:"base_price"`
	SalePrice  decimal.Decimal `json:"sale_price"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
