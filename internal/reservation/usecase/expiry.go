package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
	"github.com/flashsale/reservation-engine/pkg/logger"
)

// ExpiryConfig mirrors spec §4.5's sweep tunables.
type ExpiryConfig struct {
	SweepInterval time.Duration
	BatchSize     int
}

// ExpiryUsecase is the Expiry Reconciler (spec §4.5): the DB layer of the
// three expiry layers (the cache TTL on the active-reservation marker and
// the ReservationExpired events this sweep publishes are the other two).
// This is the layer of record — it is the only one that durably
// transitions a row out of RESERVED.
type ExpiryUsecase interface {
	Run(ctx context.Context)
	SweepOnce(ctx context.Context) (int, error)
}

type expiryUsecase struct {
	store  repository.Store
	cache  service.Cache
	events service.EventPublisher
	cfg    ExpiryConfig
	log    logger.Logger
}

func NewExpiryUsecase(store repository.Store, cache service.Cache, events service.EventPublisher, cfg ExpiryConfig, log logger.Logger) ExpiryUsecase {
	return &expiryUsecase{store: store, cache: cache, events: events, cfg: cfg, log: log}
}

func (e *expiryUsecase) Run(ctx context.Context) {
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.SweepOnce(ctx); err != nil {
				e.log.Error("expiry sweep failed", "error", err)
			} else if n > 0 {
				e.log.Info("expiry sweep completed", "expired", n)
			}
		}
	}
}

func (e *expiryUsecase) SweepOnce(ctx context.Context) (int, error) {
	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	expired, err := e.store.SweepExpired(ctx, nowFunc().Unix(), batch)
	if err != nil {
		return 0, err
	}

	for _, r := range expired {
		e.onExpired(ctx, r)
	}
	return len(expired), nil
}

func (e *expiryUsecase) onExpired(ctx context.Context, r *entity.Reservation) {
	if err := e.store.RecordStockTransaction(ctx, &entity.StockTransaction{
		ID:          uuid.New().String(),
		SKU:         r.SKU,
		Type:        valueobject.StockTransactionExpire,
		Qty:         r.Qty,
		ReferenceID: r.ID,
		OccurredAt:  nowFunc(),
	}); err != nil {
		e.log.Error("failed to record expire stock transaction", "reservation_id", r.ID, "error", err)
	}
	if _, err := e.cache.IncrementStock(ctx, r.SKU, r.Qty); err != nil {
		e.log.Error("failed to increment cached stock on expiry", "sku", r.SKU, "error", err)
	}
	if err := e.cache.ClearActiveReservation(ctx, r.UserID, r.SKU); err != nil {
		e.log.Error("failed to clear active reservation marker on expiry", "reservation_id", r.ID, "error", err)
	}
	if err := e.events.PublishReservationExpired(ctx, r); err != nil {
		e.log.Error("failed to publish reservation expired event", "reservation_id", r.ID, "error", err)
	}
}
