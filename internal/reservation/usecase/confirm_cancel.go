package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
	"github.com/flashsale/reservation-engine/pkg/logger"
	"github.com/flashsale/reservation-engine/pkg/utils"
)

// CheckoutUsecase is the Confirm/Cancel Path (spec §4.6): the transactional
// RESERVED -> CONFIRMED/CANCELLED transitions a reservation's holder drives
// directly, outside the Batch Allocator's write path.
type CheckoutUsecase interface {
	Get(ctx context.Context, reservationID string) (*entity.Reservation, error)
	Confirm(ctx context.Context, reservationID string) (*entity.Reservation, error)
	Cancel(ctx context.Context, reservationID string) (*entity.Reservation, error)
}

type checkoutUsecase struct {
	store      repository.Store
	cache      service.Cache
	events     service.EventPublisher
	log        logger.Logger
	errBuilder *utils.ErrorBuilder
}

func NewCheckoutUsecase(store repository.Store, cache service.Cache, events service.EventPublisher, log logger.Logger) CheckoutUsecase {
	return &checkoutUsecase{
		store:      store,
		cache:      cache,
		events:     events,
		log:        log,
		errBuilder: utils.NewErrorBuilder("CheckoutUsecase"),
	}
}

func (c *checkoutUsecase) Get(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	r, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeNotFound, "reservation not found", err)
	}
	return r, nil
}

func (c *checkoutUsecase) Confirm(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	existing, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeNotFound, "reservation not found", err)
	}
	if existing.Status == valueobject.ReservationStatusExpired {
		return nil, apperror.New(apperror.CodeReservationExpired, "reservation hold has lapsed")
	}
	if existing.Status != valueobject.ReservationStatusReserved {
		return nil, apperror.New(apperror.CodeInvalidState, fmt.Sprintf("reservation is %s, not RESERVED", existing.Status))
	}
	if existing.IsExpired(nowFunc()) {
		return nil, apperror.New(apperror.CodeReservationExpired, "reservation hold has lapsed")
	}

	order := &entity.Order{
		ID:            uuid.New().String(),
		ReservationID: existing.ID,
		UserID:        existing.UserID,
		SKU:           existing.SKU,
		CreatedAt:     nowFunc(),
	}

	confirmed, err := c.store.Confirm(ctx, reservationID, order)
	if err != nil {
		return nil, c.errBuilder.Err(fmt.Errorf("confirm reservation %s: %w", reservationID, err))
	}
	if confirmed.Status != valueobject.ReservationStatusConfirmed {
		return nil, apperror.New(apperror.CodeInvalidState, fmt.Sprintf("reservation is %s, not RESERVED", confirmed.Status))
	}

	if err := c.store.RecordStockTransaction(ctx, &entity.StockTransaction{
		ID:          uuid.New().String(),
		SKU:         confirmed.SKU,
		Type:        valueobject.StockTransactionConfirm,
		Qty:         confirmed.Qty,
		ReferenceID: confirmed.ID,
		OccurredAt:  nowFunc(),
	}); err != nil {
		c.log.Error("failed to record confirm stock transaction", "reservation_id", confirmed.ID, "error", err)
	}
	if err := c.cache.ClearActiveReservation(ctx, confirmed.UserID, confirmed.SKU); err != nil {
		c.log.Error("failed to clear active reservation marker", "reservation_id", confirmed.ID, "error", err)
	}
	if err := c.cache.SetPurchased(ctx, confirmed.UserID, confirmed.SKU); err != nil {
		c.log.Error("failed to set purchased marker", "reservation_id", confirmed.ID, "error", err)
	}
	if err := c.events.PublishReservationConfirmed(ctx, confirmed, order); err != nil {
		c.log.Error("failed to publish reservation confirmed event", "reservation_id", confirmed.ID, "error", err)
	}

	return confirmed, nil
}

func (c *checkoutUsecase) Cancel(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	existing, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeNotFound, "reservation not found", err)
	}
	if existing.Status == valueobject.ReservationStatusExpired {
		return nil, apperror.New(apperror.CodeReservationExpired, "reservation hold has lapsed")
	}
	if existing.Status != valueobject.ReservationStatusReserved {
		return nil, apperror.New(apperror.CodeInvalidState, fmt.Sprintf("reservation is %s, not RESERVED", existing.Status))
	}

	cancelled, err := c.store.Cancel(ctx, reservationID)
	if err != nil {
		return nil, c.errBuilder.Err(fmt.Errorf("cancel reservation %s: %w", reservationID, err))
	}

	if err := c.store.RecordStockTransaction(ctx, &entity.StockTransaction{
		ID:          uuid.New().String(),
		SKU:         cancelled.SKU,
		Type:        valueobject.StockTransactionCancel,
		Qty:         cancelled.Qty,
		ReferenceID: cancelled.ID,
		OccurredAt:  nowFunc(),
	}); err != nil {
		c.log.Error("failed to record cancel stock transaction", "reservation_id", cancelled.ID, "error", err)
	}
	if _, err := c.cache.IncrementStock(ctx, cancelled.SKU, cancelled.Qty); err != nil {
		c.log.Error("failed to increment cached stock", "sku", cancelled.SKU, "error", err)
	}
	if err := c.cache.ClearActiveReservation(ctx, cancelled.UserID, cancelled.SKU); err != nil {
		c.log.Error("failed to clear active reservation marker", "reservation_id", cancelled.ID, "error", err)
	}
	if err := c.events.PublishReservationCancelled(ctx, cancelled); err != nil {
		c.log.Error("failed to publish reservation cancelled event", "reservation_id", cancelled.ID, "error", err)
	}

	return cancelled, nil
}
