package usecase

import (
	"context"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/pkg/logger"
)

// CatalogUsecase is the supplemented Product catalog management feature
// (spec_full §SUPPLEMENTED FEATURES): arming a SKU for sale is a catalog
// write plus an inventory row, kept as two calls rather than folded
// together so a product can exist before its sale window is armed.
type CatalogUsecase interface {
	CreateProduct(ctx context.Context, p *entity.Product) error
	UpdateProduct(ctx context.Context, p *entity.Product) error
	GetProduct(ctx context.Context, sku string) (*entity.Product, error)
	ListActiveProducts(ctx context.Context, limit, offset int) ([]*entity.Product, int, error)
	ArmInventory(ctx context.Context, inv *entity.Inventory) error
	GetStockHistory(ctx context.Context, sku string, limit, offset int) ([]*entity.StockTransaction, int, error)
}

type catalogUsecase struct {
	store repository.Store
	log   logger.Logger
}

func NewCatalogUsecase(store repository.Store, log logger.Logger) CatalogUsecase {
	return &catalogUsecase{store: store, log: log}
}

func (c *catalogUsecase) CreateProduct(ctx context.Context, p *entity.Product) error {
	if p.SKU == "" || p.Name == "" {
		return apperror.New(apperror.CodeInvalidRequest, "sku and name are required")
	}
	return c.store.CreateProduct(ctx, p)
}

func (c *catalogUsecase) UpdateProduct(ctx context.Context, p *entity.Product) error {
	if p.SKU == "" {
		return apperror.New(apperror.CodeInvalidRequest, "sku is required")
	}
	return c.store.UpdateProduct(ctx, p)
}

func (c *catalogUsecase) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	p, err := c.store.GetProduct(ctx, sku)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeNotFound, "product not found", err)
	}
	return p, nil
}

func (c *catalogUsecase) ListActiveProducts(ctx context.Context, limit, offset int) ([]*entity.Product, int, error) {
	return c.store.ListActiveProducts(ctx, limit, offset)
}

// ArmInventory arms a SKU's pool for a sale window (I2: total_count is
// immutable after this call).
func (c *catalogUsecase) ArmInventory(ctx context.Context, inv *entity.Inventory) error {
	if inv.SKU == "" || inv.TotalCount <= 0 {
		return apperror.New(apperror.CodeInvalidRequest, "sku is required and total_count must be positive")
	}
	return c.store.CreateInventory(ctx, inv)
}

func (c *catalogUsecase) GetStockHistory(ctx context.Context, sku string, limit, offset int) ([]*entity.StockTransaction, int, error) {
	return c.store.GetStockTransactions(ctx, sku, limit, offset)
}
