package usecase

import (
	"context"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/pkg/logger"
)

// AvailabilityConfig mirrors spec §4.7's read-path tunables.
type AvailabilityConfig struct {
	StockCacheTTLSeconds int
	LowStockThreshold    int
}

// AvailabilityUsecase is the Availability Read Path (spec §4.7): a
// cache-first view of a SKU's remaining stock, falling back to the Store
// on a miss and repopulating the cache so the next reader doesn't.
type AvailabilityUsecase interface {
	GetAvailability(ctx context.Context, sku string) (int, error)
}

type availabilityUsecase struct {
	store  repository.Store
	cache  service.Cache
	events service.EventPublisher
	cfg    AvailabilityConfig
	log    logger.Logger
}

func NewAvailabilityUsecase(store repository.Store, cache service.Cache, events service.EventPublisher, cfg AvailabilityConfig, log logger.Logger) AvailabilityUsecase {
	return &availabilityUsecase{store: store, cache: cache, events: events, cfg: cfg, log: log}
}

func (a *availabilityUsecase) GetAvailability(ctx context.Context, sku string) (int, error) {
	if count, ok, err := a.cache.GetStock(ctx, sku); err == nil && ok {
		return count, nil
	}

	inv, err := a.store.GetInventory(ctx, sku)
	if err != nil {
		return 0, apperror.Wrap(apperror.CodeNotFound, "sku not found", err)
	}
	available := inv.AvailableCount()

	if err := a.cache.SetStock(ctx, sku, available); err != nil {
		a.log.Error("failed to repopulate stock cache", "sku", sku, "error", err)
	}

	threshold := a.cfg.LowStockThreshold
	if threshold > 0 && available <= threshold {
		if err := a.events.PublishStockLow(ctx, sku, available); err != nil {
			a.log.Error("failed to publish low stock signal", "sku", sku, "error", err)
		}
	}

	return available, nil
}
