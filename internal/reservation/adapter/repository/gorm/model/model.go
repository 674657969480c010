package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
)

// Product is the GORM model for the catalog entry backing a SKU.
type Product struct {
	SKU       string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Category  string `gorm:"index"`
	BasePrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SalePrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Active    bool            `gorm:"not null;index"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

func (m *Product) ToEntity() *entity.Product {
	return &entity.Product{
		SKU: m.SKU, Name: m.Name, Category: m.Category,
		BasePrice: m.BasePrice, SalePrice: m.SalePrice, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func NewProductModel(p *entity.Product) *Product {
	return &Product{
		SKU: p.SKU, Name: p.Name, Category: p.Category,
		BasePrice: p.BasePrice, SalePrice: p.SalePrice, Active: p.Active,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

// Inventory is the GORM model for a SKU's sale-window pool. Version is the
// optimistic lock the Batch Allocator's conditional UPDATE turns on.
type Inventory struct {
	SKU             string    `gorm:"primaryKey"`
	TotalCount      int       `gorm:"not null"`
	ReservedCount   int       `gorm:"not null"`
	SoldCount       int       `gorm:"not null"`
	Version         int64     `gorm:"not null"`
	SaleWindowStart time.Time `gorm:"not null"`
	SaleWindowEnd   time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Inventory) TableName() string { return "inventories" }

func (m *Inventory) ToEntity() *entity.Inventory {
	return &entity.Inventory{
		SKU: m.SKU, TotalCount: m.TotalCount, ReservedCount: m.ReservedCount,
		SoldCount: m.SoldCount, Version: m.Version,
		SaleWindowStart: m.SaleWindowStart, SaleWindowEnd: m.SaleWindowEnd,
		UpdatedAt: m.UpdatedAt,
	}
}

func NewInventoryModel(inv *entity.Inventory) *Inventory {
	return &Inventory{
		SKU: inv.SKU, TotalCount: inv.TotalCount, ReservedCount: inv.ReservedCount,
		SoldCount: inv.SoldCount, Version: inv.Version,
		SaleWindowStart: inv.SaleWindowStart, SaleWindowEnd: inv.SaleWindowEnd,
		UpdatedAt: inv.UpdatedAt,
	}
}

// Reservation is the GORM model for a held (or since-resolved) unit.
type Reservation struct {
	ID             string `gorm:"primaryKey"`
	SKU            string `gorm:"index;not null"`
	UserID         string `gorm:"index;not null"`
	Qty            int    `gorm:"not null"`
	Status         string `gorm:"not null;index"`
	IdempotencyKey string `gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
}

func (Reservation) TableName() string { return "reservations" }

func (m *Reservation) ToEntity() *entity.Reservation {
	return &entity.Reservation{
		ID: m.ID, SKU: m.SKU, UserID: m.UserID, Qty: m.Qty,
		Status:         valueobject.ReservationStatus(m.Status),
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt, ExpiresAt: m.ExpiresAt,
		ConfirmedAt: m.ConfirmedAt, CancelledAt: m.CancelledAt,
	}
}

func NewReservationModel(r *entity.Reservation) *Reservation {
	return &Reservation{
		ID: r.ID, SKU: r.SKU, UserID: r.UserID, Qty: r.Qty,
		Status:         r.Status.String(),
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt, ExpiresAt: r.ExpiresAt,
		ConfirmedAt: r.ConfirmedAt, CancelledAt: r.CancelledAt,
	}
}

// UserPurchase is the GORM model enforcing R1's "one confirmed purchase
// per user per SKU" half via a composite unique index.
type UserPurchase struct {
	UserID        string    `gorm:"primaryKey"`
	SKU           string    `gorm:"primaryKey"`
	ReservationID string    `gorm:"not null"`
	PurchasedAt   time.Time `gorm:"not null"`
}

func (UserPurchase) TableName() string { return "user_purchases" }

func (m *UserPurchase) ToEntity() *entity.UserPurchase {
	return &entity.UserPurchase{
		UserID: m.UserID, SKU: m.SKU,
		ReservationID: m.ReservationID, PurchasedAt: m.PurchasedAt,
	}
}

func NewUserPurchaseModel(u *entity.UserPurchase) *UserPurchase {
	return &UserPurchase{
		UserID: u.UserID, SKU: u.SKU,
		ReservationID: u.ReservationID, PurchasedAt: u.PurchasedAt,
	}
}

// StockTransaction is the GORM model for the append-only ledger.
type StockTransaction struct {
	ID          string    `gorm:"primaryKey"`
	SKU         string    `gorm:"index;not null"`
	Type        string    `gorm:"not null"`
	Qty         int       `gorm:"not null"`
	ReferenceID string    `gorm:"index"`
	OccurredAt  time.Time `gorm:"not null;index"`
}

func (StockTransaction) TableName() string { return "stock_transactions" }

func (m *StockTransaction) ToEntity() *entity.StockTransaction {
	return &entity.StockTransaction{
		ID: m.ID, SKU: m.SKU, Type: valueobject.StockTransactionType(m.Type),
		Qty: m.Qty, ReferenceID: m.ReferenceID, OccurredAt: m.OccurredAt,
	}
}

func NewStockTransactionModel(t *entity.StockTransaction) *StockTransaction {
	return &StockTransaction{
		ID: t.ID, SKU: t.SKU, Type: t.Type.String(),
		Qty: t.Qty, ReferenceID: t.ReferenceID, OccurredAt: t.OccurredAt,
	}
}

// Order is the GORM model for the boundary record Confirm creates.
type Order struct {
	ID            string    `gorm:"primaryKey"`
	ReservationID string    `gorm:"uniqueIndex;not null"`
	UserID        string    `gorm:"index;not null"`
	SKU           string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

func (m *Order) ToEntity() *entity.Order {
	return &entity.Order{
		ID: m.ID, ReservationID: m.ReservationID,
		UserID: m.UserID, SKU: m.SKU, CreatedAt: m.CreatedAt,
	}
}

func NewOrderModel(o *entity.Order) *Order {
	return &Order{
		ID: o.ID, ReservationID: o.ReservationID,
		UserID: o.UserID, SKU: o.SKU, CreatedAt: o.CreatedAt,
	}
}
