package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flashsale/reservation-engine/internal/reservation/adapter/repository/gorm/model"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/entity"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/valueobject"
)

const maxOptimisticRetries = 5

// GormStore implements repository.Store using GORM against MySQL. It is
// the sole writer of inventory counters and reservation rows; every
// mutation goes through a version-gated conditional UPDATE so concurrent
// allocators (or a retried batch) cannot silently stack on top of each
// other's writes.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetInventory(ctx context.Context, sku string) (*entity.Inventory, error) {
	var m model.Inventory
	if err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&m).Error; err != nil {
		return nil, err
	}
	return m.ToEntity(), nil
}

func (s *GormStore) CreateInventory(ctx context.Context, inv *entity.Inventory) error {
	m := model.NewInventoryModel(inv)
	m.Version = 1
	m.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(m).Error
}

// AllocateBatch implements spec §4.3's optimistic conditional update. It
// reads the inventory row, computes K' = min(K, available) up front, and
// issues a single UPDATE gated on the row's version and on K' units of
// headroom: when headroom covers the whole batch every request is
// admitted, otherwise only the earliest K' requests in arrival order are,
// and the rest are rejected as OUT_OF_STOCK. A full-batch UPDATE is not
// attempted first when the read shows too little headroom. The whole
// thing is retried on optimistic-lock contention, bounded by
// maxOptimisticRetries.
func (s *GormStore) AllocateBatch(ctx context.Context, sku string, holdDurationSeconds int, requests []repository.AllocationRequest) ([]repository.AllocationOutcome, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	var outcomes []repository.AllocationOutcome

	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		done, err := s.tryAllocate(ctx, sku, holdDurationSeconds, requests, &outcomes)
		if err != nil {
			return nil, err
		}
		if done {
			return outcomes, nil
		}
	}

	return nil, errors.New("allocate batch: exhausted optimistic retries on concurrent version change")
}

func (s *GormStore) tryAllocate(ctx context.Context, sku string, holdDurationSeconds int, requests []repository.AllocationRequest, outcomes *[]repository.AllocationOutcome) (bool, error) {
	contended := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.Inventory
		if err := tx.Where("sku = ?", sku).First(&inv).Error; err != nil {
			return err
		}

		available := inv.TotalCount - inv.ReservedCount - inv.SoldCount
		k := len(requests)
		admitCount := k
		if available < k {
			admitCount = available
		}
		if admitCount < 0 {
			admitCount = 0
		}

		if admitCount > 0 {
			result := tx.Model(&model.Inventory{}).
				Where("sku = ? AND version = ? AND (total_count - reserved_count - sold_count) >= ?", sku, inv.Version, admitCount).
				Updates(map[string]interface{}{
					"reserved_count": gorm.Expr("reserved_count + ?", admitCount),
					"version":        gorm.Expr("version + 1"),
					"updated_at":     time.Now(),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				contended = true
				return nil
			}
		}

		now := time.Now()
		expiresAt := now.Add(time.Duration(holdDurationSeconds) * time.Second)
		built := make([]repository.AllocationOutcome, 0, len(requests))

		for i, req := range requests {
			if i < admitCount {
				r := &entity.Reservation{
					ID:             uuid.New().String(),
					SKU:            sku,
					UserID:         req.UserID,
					Qty:            1,
					Status:         valueobject.ReservationStatusReserved,
					IdempotencyKey: req.IdempotencyKey,
					CreatedAt:      now,
					ExpiresAt:      expiresAt,
				}
				if err := tx.Create(model.NewReservationModel(r)).Error; err != nil {
					return err
				}
				built = append(built, repository.AllocationOutcome{Request: req, Reservation: r, Admitted: true})
			} else {
				built = append(built, repository.AllocationOutcome{Request: req, Admitted: false, RejectReason: "insufficient stock remaining in batch"})
			}
		}

		*outcomes = built
		return nil
	})

	if err != nil {
		return false, err
	}
	return !contended, nil
}

func (s *GormStore) GetReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	var m model.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return m.ToEntity(), nil
}

func (s *GormStore) GetReservationByIdempotencyKey(ctx context.Context, key string) (*entity.Reservation, error) {
	var m model.Reservation
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToEntity(), nil
}

func (s *GormStore) HasActiveReservation(ctx context.Context, userID, sku string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("user_id = ? AND sku = ? AND status = ?", userID, sku, valueobject.ReservationStatusReserved.String()).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) HasPurchased(ctx context.Context, userID, sku string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserPurchase{}).
		Where("user_id = ? AND sku = ?", userID, sku).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) Confirm(ctx context.Context, reservationID string, order *entity.Order) (*entity.Reservation, error) {
	var result *entity.Reservation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Reservation
		if err := tx.Where("id = ?", reservationID).First(&m).Error; err != nil {
			return err
		}
		if m.Status != valueobject.ReservationStatusReserved.String() {
			result = m.ToEntity()
			return nil
		}

		now := time.Now()
		update := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", reservationID, valueobject.ReservationStatusReserved.String()).
			Updates(map[string]interface{}{"status": valueobject.ReservationStatusConfirmed.String(), "confirmed_at": now})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			if err := tx.Where("id = ?", reservationID).First(&m).Error; err != nil {
				return err
			}
			result = m.ToEntity()
			return nil
		}

		invUpdate := tx.Model(&model.Inventory{}).
			Where("sku = ?", m.SKU).
			Updates(map[string]interface{}{
				"reserved_count": gorm.Expr("reserved_count - ?", m.Qty),
				"sold_count":     gorm.Expr("sold_count + ?", m.Qty),
				"version":        gorm.Expr("version + 1"),
				"updated_at":     now,
			})
		if invUpdate.Error != nil {
			return invUpdate.Error
		}

		if err := tx.Create(model.NewOrderModel(order)).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.UserPurchase{
			UserID: m.UserID, SKU: m.SKU, ReservationID: m.ID, PurchasedAt: now,
		}).Error; err != nil {
			return err
		}

		m.Status = valueobject.ReservationStatusConfirmed.String()
		m.ConfirmedAt = &now
		result = m.ToEntity()
		return nil
	})

	return result, err
}

func (s *GormStore) Cancel(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	var result *entity.Reservation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Reservation
		if err := tx.Where("id = ?", reservationID).First(&m).Error; err != nil {
			return err
		}
		if m.Status != valueobject.ReservationStatusReserved.String() {
			result = m.ToEntity()
			return nil
		}

		now := time.Now()
		update := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", reservationID, valueobject.ReservationStatusReserved.String()).
			Updates(map[string]interface{}{"status": valueobject.ReservationStatusCancelled.String(), "cancelled_at": now})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			if err := tx.Where("id = ?", reservationID).First(&m).Error; err != nil {
				return err
			}
			result = m.ToEntity()
			return nil
		}

		invUpdate := tx.Model(&model.Inventory{}).
			Where("sku = ?", m.SKU).
			Updates(map[string]interface{}{
				"reserved_count": gorm.Expr("reserved_count - ?", m.Qty),
				"version":        gorm.Expr("version + 1"),
				"updated_at":     now,
			})
		if invUpdate.Error != nil {
			return invUpdate.Error
		}

		m.Status = valueobject.ReservationStatusCancelled.String()
		m.CancelledAt = &now
		result = m.ToEntity()
		return nil
	})

	return result, err
}

// SweepExpired implements the Expiry Reconciler's durable layer: each row
// is transitioned one at a time so a concurrent Confirm/Cancel that beat
// the sweep to it is simply skipped via the status-gated WHERE clause.
func (s *GormStore) SweepExpired(ctx context.Context, asOf int64, limit int) ([]*entity.Reservation, error) {
	cutoff := time.Unix(asOf, 0)

	var candidates []model.Reservation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", valueobject.ReservationStatusReserved.String(), cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	expired := make([]*entity.Reservation, 0, len(candidates))

	for _, c := range candidates {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := time.Now()
			update := tx.Model(&model.Reservation{}).
				Where("id = ? AND status = ?", c.ID, valueobject.ReservationStatusReserved.String()).
				Update("status", valueobject.ReservationStatusExpired.String())
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return nil
			}

			if err := tx.Model(&model.Inventory{}).
				Where("sku = ?", c.SKU).
				Updates(map[string]interface{}{
					"reserved_count": gorm.Expr("reserved_count - ?", c.Qty),
					"version":        gorm.Expr("version + 1"),
					"updated_at":     now,
				}).Error; err != nil {
				return err
			}

			c.Status = valueobject.ReservationStatusExpired.String()
			expired = append(expired, c.ToEntity())
			return nil
		})
		if err != nil {
			return expired, err
		}
	}

	return expired, nil
}

func (s *GormStore) RecordStockTransaction(ctx context.Context, txn *entity.StockTransaction) error {
	return s.db.WithContext(ctx).Create(model.NewStockTransactionModel(txn)).Error
}

func (s *GormStore) GetStockTransactions(ctx context.Context, sku string, limit, offset int) ([]*entity.StockTransaction, int, error) {
	var rows []model.StockTransaction
	var total int64

	if err := s.db.WithContext(ctx).Model(&model.StockTransaction{}).Where("sku = ?", sku).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := s.db.WithContext(ctx).Where("sku = ?", sku).
		Order("occurred_at DESC").Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*entity.StockTransaction, len(rows))
	for i, r := range rows {
		out[i] = r.ToEntity()
	}
	return out, int(total), nil
}

func (s *GormStore) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	var m model.Product
	if err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&m).Error; err != nil {
		return nil, err
	}
	return m.ToEntity(), nil
}

func (s *GormStore) CreateProduct(ctx context.Context, p *entity.Product) error {
	m := model.NewProductModel(p)
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) UpdateProduct(ctx context.Context, p *entity.Product) error {
	m := model.NewProductModel(p)
	m.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).Model(&model.Product{}).Where("sku = ?", p.SKU).Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ListActiveProducts(ctx context.Context, limit, offset int) ([]*entity.Product, int, error) {
	var rows []model.Product
	var total int64

	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("active = ?", true).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := s.db.WithContext(ctx).Where("active = ?", true).
		Order("updated_at DESC").Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*entity.Product, len(rows))
	for i, r := range rows {
		out[i] = r.ToEntity()
	}
	return out, int(total), nil
}
