package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/service"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
	"github.com/flashsale/reservation-engine/pkg/logger"
	"github.com/flashsale/reservation-engine/pkg/utils"
)

// outcomeNotifier is the half of IntakeUsecase the Batch Allocator needs:
// wake up whichever Submit call is blocked on this idempotency key.
type outcomeNotifier interface {
	Resolve(idempotencyKey string, outcome Outcome)
}

// AllocatorConfig mirrors spec §4.2/§4.3's tunables.
type AllocatorConfig struct {
	BatchSize           int
	BatchMaxWaitMillis  int
	HoldDurationSeconds int
	MaxApplyRetries     int
}

// AllocatorUsecase is the Batch Allocator (spec §4.3): the single writer
// for a SKU partition. Exactly one goroutine should call RunPartition for
// a given partition at a time.
type AllocatorUsecase interface {
	RunPartition(ctx context.Context, partition int)
	ProcessBatch(ctx context.Context, batch []service.BusMessage) error
}

type allocatorUsecase struct {
	store      repository.Store
	cache      service.Cache
	bus        service.Bus
	events     service.EventPublisher
	notifier   outcomeNotifier
	cfg        AllocatorConfig
	log        logger.Logger
	errBuilder *utils.ErrorBuilder
}

func NewAllocatorUsecase(store repository.Store, cache service.Cache, bus service.Bus, events service.EventPublisher, notifier outcomeNotifier, cfg AllocatorConfig, log logger.Logger) AllocatorUsecase {
	return &allocatorUsecase{
		store:      store,
		cache:      cache,
		bus:        bus,
		events:     events,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		errBuilder: utils.NewErrorBuilder("AllocatorUsecase"),
	}
}

// RunPartition pulls batches from one partition forever, in order, until
// ctx is cancelled. No rebalancing happens within this loop by design —
// the partition assignment is fixed for the sale window.
func (a *allocatorUsecase) RunPartition(ctx context.Context, partition int) {
	a.log.Info("allocator worker started", "partition", partition)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("allocator worker stopping", "partition", partition)
			return
		default:
		}

		batch, err := a.bus.ConsumeBatch(ctx, partition, a.cfg.BatchSize, a.cfg.BatchMaxWaitMillis)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Error("failed to consume batch", "partition", partition, "error", err)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		if err := a.processBatchWithRetry(ctx, batch); err != nil {
			a.log.Error("batch processing failed after retries, dead-lettering", "partition", partition, "error", err)
			if dlErr := a.bus.DeadLetter(ctx, batch, err.Error()); dlErr != nil {
				a.log.Error("failed to dead-letter batch", "partition", partition, "error", dlErr)
			}
			a.abandonBatch(batch, apperror.New(apperror.CodePoisonBatch, "batch could not be applied"))
			continue
		}

		if err := a.bus.Ack(ctx, batch); err != nil {
			a.log.Error("failed to ack batch", "partition", partition, "error", err)
		}
	}
}

func (a *allocatorUsecase) processBatchWithRetry(ctx context.Context, batch []service.BusMessage) error {
	var lastErr error
	retries := a.cfg.MaxApplyRetries
	if retries <= 0 {
		retries = 3
	}
	for attempt := 1; attempt <= retries; attempt++ {
		if err := a.ProcessBatch(ctx, batch); err != nil {
			lastErr = err
			a.log.Warn("batch apply attempt failed", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (a *allocatorUsecase) abandonBatch(batch []service.BusMessage, outcomeErr *apperror.Error) {
	for _, m := range batch {
		a.notifier.Resolve(m.Request.IdempotencyKey, Outcome{Err: outcomeErr})
	}
}

// ProcessBatch implements spec §4.3 steps 1-7 for one pulled batch, which
// may span several SKUs sharing this partition.
func (a *allocatorUsecase) ProcessBatch(ctx context.Context, batch []service.BusMessage) error {
	candidatesBySKU := make(map[string][]repository.AllocationRequest)
	skuOrder := make([]string, 0, 4)
	preResolved := make(map[string]Outcome)
	seenKeys := make(map[string]bool, len(batch))

	// Step 2: per-message validation against the Store (authoritative,
	// not the cache pre-check Intake already did).
	for _, msg := range batch {
		req := msg.Request

		// A retried submission can land twice in the same pulled batch
		// before either copy is persisted. Keep only the first occurrence
		// as a candidate — passing the same idempotency key to
		// AllocateBatch twice would try to insert two reservation rows
		// under one unique key, failing the whole SKU group's transaction
		// and poisoning the batch. pendingRegistry holds at most one waiter
		// per idempotency key (the latest registration), so a single
		// Resolve per key is all it needs.
		if seenKeys[req.IdempotencyKey] {
			continue
		}
		seenKeys[req.IdempotencyKey] = true

		if existing, err := a.store.GetReservationByIdempotencyKey(ctx, req.IdempotencyKey); err == nil && existing != nil {
			preResolved[req.IdempotencyKey] = Outcome{Reservation: existing}
			continue
		}

		if has, err := a.store.HasPurchased(ctx, req.UserID, req.SKU); err == nil && has {
			preResolved[req.IdempotencyKey] = Outcome{Err: apperror.New(apperror.CodeUserAlreadyPurchased, "user already purchased this sku")}
			continue
		}
		if has, err := a.store.HasActiveReservation(ctx, req.UserID, req.SKU); err == nil && has {
			preResolved[req.IdempotencyKey] = Outcome{Err: apperror.New(apperror.CodeUserHasActiveReservation, "user already holds an active reservation for this sku")}
			continue
		}

		if _, ok := candidatesBySKU[req.SKU]; !ok {
			skuOrder = append(skuOrder, req.SKU)
		}
		candidatesBySKU[req.SKU] = append(candidatesBySKU[req.SKU], repository.AllocationRequest{
			UserID:         req.UserID,
			SKU:            req.SKU,
			IdempotencyKey: req.IdempotencyKey,
		})
	}

	// Step 3: two-phase optimistic conditional update, per SKU, preserving
	// arrival order within each SKU's group.
	allOutcomes := make(map[string]repository.AllocationOutcome, len(batch))
	for _, sku := range skuOrder {
		outcomes, err := a.store.AllocateBatch(ctx, sku, a.cfg.HoldDurationSeconds, candidatesBySKU[sku])
		if err != nil {
			return a.errBuilder.Err(fmt.Errorf("allocate batch for sku %s: %w", sku, err))
		}
		for _, o := range outcomes {
			allOutcomes[o.Request.IdempotencyKey] = o
		}
		a.probeOversell(ctx, sku)
	}

	// Steps 4-6: persist the ledger entry and fire best-effort side
	// effects. None of these failures roll back the transaction that
	// already committed in AllocateBatch.
	for key, outcome := range allOutcomes {
		if outcome.Admitted {
			a.onAdmitted(ctx, outcome.Reservation)
			a.notifier.Resolve(key, Outcome{Reservation: outcome.Reservation})
		} else {
			a.onRejected(ctx, outcome.Request, outcome.RejectReason)
			a.notifier.Resolve(key, Outcome{Err: apperror.New(apperror.CodeOutOfStock, outcome.RejectReason)})
		}
	}
	for key, outcome := range preResolved {
		a.notifier.Resolve(key, outcome)
	}

	return nil
}

func (a *allocatorUsecase) onAdmitted(ctx context.Context, r *entity.Reservation) {
	if err := a.store.RecordStockTransaction(ctx, &entity.StockTransaction{
		ID:          uuid.New().String(),
		SKU:         r.SKU,
		Type:        valueobject.StockTransactionReserve,
		Qty:         r.Qty,
		ReferenceID: r.ID,
		OccurredAt:  time.Now(),
	}); err != nil {
		a.log.Error("failed to record stock transaction", "reservation_id", r.ID, "error", err)
	}

	if _, err := a.cache.DecrementStock(ctx, r.SKU, r.Qty); err != nil {
		a.log.Error("failed to decrement cached stock", "sku", r.SKU, "error", err)
	}
	if err := a.cache.SetActiveReservation(ctx, r.UserID, r.SKU, a.cfg.HoldDurationSeconds+30); err != nil {
		a.log.Error("failed to set active reservation marker", "reservation_id", r.ID, "error", err)
	}
	if err := a.events.PublishReservationCreated(ctx, r); err != nil {
		a.log.Error("failed to publish reservation created event", "reservation_id", r.ID, "error", err)
	}
}

func (a *allocatorUsecase) onRejected(ctx context.Context, req repository.AllocationRequest, reason string) {
	if err := a.cache.SetRejection(ctx, req.IdempotencyKey, reason); err != nil {
		a.log.Error("failed to cache rejection", "idempotency_key", req.IdempotencyKey, "error", err)
	}
	if err := a.events.PublishReservationRejected(ctx, req.UserID, req.SKU, req.IdempotencyKey, reason); err != nil {
		a.log.Error("failed to publish reservation rejected event", "idempotency_key", req.IdempotencyKey, "error", err)
	}
}

// probeOversell is I1's runtime guard: after every allocation against a
// SKU, verify the invariant actually held. A violation here means the
// conditional update itself has a bug, not that a retry will help — it is
// always logged at error level and never silently absorbed.
func (a *allocatorUsecase) probeOversell(ctx context.Context, sku string) {
	inv, err := a.store.GetInventory(ctx, sku)
	if err != nil {
		a.log.Error("oversell probe could not load inventory", "sku", sku, "error", err)
		return
	}
	if inv.ReservedCount+inv.SoldCount > inv.TotalCount {
		a.log.Error("oversell detected",
			"code", apperror.CodeOversellDetected,
			"sku", sku,
			"reserved", inv.ReservedCount,
			"sold", inv.SoldCount,
			"total", inv.TotalCount,
		)
	}
}
