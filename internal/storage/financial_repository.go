package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tournevent/fulfillment/pkg/finance"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFinancialRepository stores the singleton financial config row.
type GormFinancialRepository struct {
	db *gorm.DB
}

// NewFinancialRepository creates a new GormFinancialRepository.
func NewFinancialRepository(db *gorm.DB) *GormFinancialRepository {
	return &GormFinancialRepository{db: db}
}

// GetFinancialConfig returns finance.ErrNotFound until a config is saved.
func (r *GormFinancialRepository) GetFinancialConfig(ctx context.Context) (*finance.Config, error) {
	var m financialConfigModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", financialConfigID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finance.ErrNotFound
		}
		return nil, fmt.Errorf("get financial config: %w", err)
	}
	return m.toDomain(), nil
}

// SaveFinancialConfig replaces the stored config.
func (r *GormFinancialRepository) SaveFinancialConfig(ctx context.Context, cfg *finance.Config) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(financialConfigModelFromDomain(cfg)).Error
	if err != nil {
		return fmt.Errorf("save financial config: %w", err)
	}
	return nil
}
