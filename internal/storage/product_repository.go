package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tournevent/fulfillment/pkg/catalog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository is the local product catalog.
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new GormProductRepository.
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// GetProduct returns a product by id.
func (r *GormProductRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	var m productModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p := m.toDomain()
	return &p, nil
}

// ListProducts returns a page of products matching the filter search on name or SKU.
func (r *GormProductRepository) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	filter = filter.Normalize()

	query := r.db.WithContext(ctx).Model(&productModel{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", pattern, pattern)
	}

	var rows []productModel
	err := query.Order("name").Order("id").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	result := make([]catalog.Product, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// SaveProduct upserts a product.
func (r *GormProductRepository) SaveProduct(ctx context.Context, p *catalog.Product) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(productModelFromDomain(p)).Error
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}
