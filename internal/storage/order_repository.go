package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/fulfillment/pkg/orders"
	"gorm.io/gorm"
)

// GormOrderRepository implements orders.Repository.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new GormOrderRepository.
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts the order and its items.
func (r *GormOrderRepository) Create(ctx context.Context, order *orders.Order) error {
	m := orderModelFromDomain(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// Get returns the order with its items.
func (r *GormOrderRepository) Get(ctx context.Context, id string) (*orders.Order, error) {
	var m orderModel
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByPosition).
		First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orders.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o := m.toDomain()
	return &o, nil
}

// List returns orders newest first.
func (r *GormOrderRepository) List(ctx context.Context, filter orders.ListFilter) ([]orders.Order, error) {
	query := r.db.WithContext(ctx).Model(&orderModel{}).Preload("Items", orderItemsByPosition)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []orderModel
	if err := query.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	result := make([]orders.Order, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// UpdateStatus applies update only while the order is still in status from.
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id string, from orders.Status, update orders.StatusUpdate) (bool, error) {
	values := map[string]any{
		"status":     string(update.To),
		"updated_at": update.UpdatedAt.UTC(),
	}
	if update.PaidAt != nil {
		values["paid_at"] = update.PaidAt.UTC()
	}
	if update.ShippedAt != nil {
		values["shipped_at"] = update.ShippedAt.UTC()
	}
	if update.DeliveredAt != nil {
		values["delivered_at"] = update.DeliveredAt.UTC()
	}
	if update.TrackingCode != nil {
		values["tracking_code"] = *update.TrackingCode
	}
	if update.TrackingURL != nil {
		values["tracking_url"] = *update.TrackingURL
	}

	result := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("update order status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ExpirePending cancels stale PENDING orders in a single statement.
func (r *GormOrderRepository) ExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("status = ? AND created_at < ?", string(orders.StatusPending), cutoff.UTC()).
		Updates(map[string]any{
			"status":     string(orders.StatusCancelled),
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("expire pending orders: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func orderItemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}
