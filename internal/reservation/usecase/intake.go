package usecase

import (
	"context"
	"time"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/pkg/logger"
	"github.com/flashsale/reservation-engine/pkg/utils"
)

// SubmitRequest is one reservation request as it arrives at the boundary,
// before it becomes a service.RequestMessage on the bus.
type SubmitRequest struct {
	UserID         string
	SKU            string
	Qty            int
	IdempotencyKey string
}

// IntakeUsecase is the Request Intake component (spec §4.1): validate
// shape, short-circuit against the cache where possible, publish onto the
// Partitioned Bus, and wait for the Batch Allocator's verdict.
type IntakeUsecase interface {
	Submit(ctx context.Context, req SubmitRequest) (*entity.Reservation, error)
	// Resolve is called by the Batch Allocator once a batch containing
	// this idempotency key has been durably applied.
	Resolve(idempotencyKey string, outcome Outcome)
}

type intakeUsecase struct {
	store      repository.Store
	cache      service.Cache
	bus        service.Bus
	pending    *pendingRegistry
	waitLimit  time.Duration
	log        logger.Logger
	errBuilder *utils.ErrorBuilder
}

func NewIntakeUsecase(store repository.Store, cache service.Cache, bus service.Bus, waitLimit time.Duration, log logger.Logger) IntakeUsecase {
	return &intakeUsecase{
		store:      store,
		cache:      cache,
		bus:        bus,
		pending:    newPendingRegistry(),
		waitLimit:  waitLimit,
		log:        log,
		errBuilder: utils.NewErrorBuilder("IntakeUsecase"),
	}
}

func (iu *intakeUsecase) Resolve(idempotencyKey string, outcome Outcome) {
	iu.pending.resolve(idempotencyKey, outcome)
}

func (iu *intakeUsecase) Submit(ctx context.Context, req SubmitRequest) (*entity.Reservation, error) {
	if req.UserID == "" || req.SKU == "" || req.IdempotencyKey == "" || req.Qty != 1 {
		return nil, apperror.New(apperror.CodeInvalidRequest, "user_id, sku, idempotency_key are required and qty must be 1")
	}

	// Cheap cache pre-checks: short-circuit hopeless requests before
	// touching the bus at all. These are advisory — the Batch Allocator
	// still re-checks against the Store, which is authoritative.
	if reason, ok, err := iu.cache.GetRejection(ctx, req.IdempotencyKey); err == nil && ok {
		return nil, apperror.New(apperror.CodeDuplicateRequest, reason)
	}
	if has, err := iu.cache.HasPurchased(ctx, req.UserID, req.SKU); err == nil && has {
		return nil, apperror.New(apperror.CodeUserAlreadyPurchased, "user already purchased this sku")
	}
	if has, err := iu.cache.HasActiveReservation(ctx, req.UserID, req.SKU); err == nil && has {
		return nil, apperror.New(apperror.CodeUserHasActiveReservation, "user already holds an active reservation for this sku")
	}

	// R2: a resubmission with a key we've already durably resolved
	// returns the original outcome instead of re-entering the bus.
	if existing, err := iu.store.GetReservationByIdempotencyKey(ctx, req.IdempotencyKey); err == nil && existing != nil {
		return existing, nil
	}

	waitCh := iu.pending.register(req.IdempotencyKey)

	if err := iu.bus.Publish(ctx, service.RequestMessage{
		SKU:            req.SKU,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		EnqueuedAtUnix: time.Now().Unix(),
	}); err != nil {
		iu.pending.abandon(req.IdempotencyKey)
		return nil, apperror.Wrap(apperror.CodeTemporarilyUnavailable, "failed to enqueue reservation request", err)
	}

	select {
	case outcome := <-waitCh:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Reservation, nil
	case <-time.After(iu.waitLimit):
		iu.pending.abandon(req.IdempotencyKey)
		return nil, apperror.New(apperror.CodeTemporarilyUnavailable, "timed out waiting for allocation outcome")
	case <-ctx.Done():
		iu.pending.abandon(req.IdempotencyKey)
		return nil, apperror.Wrap(apperror.CodeDeadlineExceeded, "request cancelled", ctx.Err())
	}
}
