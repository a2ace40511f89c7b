package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTokenRepository stores carrier credentials, one row per environment.
type GormTokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new GormTokenRepository.
func NewTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

// GetToken returns the credential for environment.
func (r *GormTokenRepository) GetToken(ctx context.Context, environment string) (*melhorenvio.Token, error) {
	var m carrierTokenModel
	if err := r.db.WithContext(ctx).First(&m, "environment = ?", environment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, melhorenvio.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get carrier token: %w", err)
	}
	return m.toDomain(), nil
}

// SaveToken upserts the credential for its environment.
func (r *GormTokenRepository) SaveToken(ctx context.Context, token *melhorenvio.Token) error {
	m := carrierTokenModel{
		Environment:  token.Environment,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		ExpiresAt:    token.ExpiresAt.UTC(),
		UpdatedAt:    token.UpdatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "scope", "expires_at", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save carrier token: %w", err)
	}
	return nil
}
