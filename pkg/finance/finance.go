// Package finance holds the storefront's financial settings: installments,
// free shipping and markup.
package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// RoleOwner is the only role allowed to see and change cost fields.
const RoleOwner = "owner"

var (
	// ErrNotFound is returned by a Repository with no stored config.
	ErrNotFound = errors.New("financial config not found")

	// ErrForbidden is returned when a non-owner tries to change the config.
	ErrForbidden = errors.New("financial config: owner role required")

	// ErrInvalidConfig is returned for out-of-range values.
	ErrInvalidConfig = errors.New("invalid financial config")
)

// Config is the singleton financial configuration.
type Config struct {
	InterestRate          decimal.Decimal `json:"interestRate"`
	MaxInstallments       int             `json:"maxInstallments"`
	MinInstallmentValue   decimal.Decimal `json:"minInstallmentValue"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	Markup                decimal.Decimal `json:"markup"`
	Costs                 Costs           `json:"costs"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Costs are internal cost inputs hidden from non-owners.
type Costs struct {
	PaymentFeeRate decimal.Decimal `json:"paymentFeeRate"`
	PackagingCost  decimal.Decimal `json:"packagingCost"`
}

// View is the config as shown to a role. Costs is nil unless the role is owner.
type View struct {
	InterestRate          decimal.Decimal `json:"interestRate"`
	MaxInstallments       int             `json:"maxInstallments"`
	MinInstallmentValue   decimal.Decimal `json:"minInstallmentValue"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	Markup                decimal.Decimal `json:"markup"`
	Costs                 *Costs          `json:"costs,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Defaults is the config used until an owner saves one.
func Defaults() Config {
	return Config{
		InterestRate:          decimal.RequireFromString("0.0299"),
		MaxInstallments:       6,
		MinInstallmentValue:   decimal.NewFromInt(50),
		FreeShippingThreshold: decimal.Zero,
		Markup:                decimal.Zero,
	}
}

// View projects the config for role.
func (c Config) View(role string) View {
	v := View{
		InterestRate:          c.InterestRate,
		MaxInstallments:       c.MaxInstallments,
		MinInstallmentValue:   c.MinInstallmentValue,
		FreeShippingThreshold: c.FreeShippingThreshold,
		Markup:                c.Markup,
		UpdatedAt:             c.UpdatedAt,
	}
	if role == RoleOwner {
		costs := c.Costs
		v.Costs = &costs
	}
	return v
}

// Validate rejects negative amounts and an installment count below one.
func (c Config) Validate() error {
	switch {
	case c.InterestRate.IsNegative():
		return fmt.Errorf("%w: interestRate must not be negative", ErrInvalidConfig)
	case c.MaxInstallments < 1:
		return fmt.Errorf("%w: maxInstallments must be at least 1", ErrInvalidConfig)
	case c.MinInstallmentValue.IsNegative():
		return fmt.Errorf("%w: minInstallmentValue must not be negative", ErrInvalidConfig)
	case c.FreeShippingThreshold.IsNegative():
		return fmt.Errorf("%w: freeShippingThreshold must not be negative", ErrInvalidConfig)
	case c.Markup.IsNegative():
		return fmt.Errorf("%w: markup must not be negative", ErrInvalidConfig)
	case c.Costs.PaymentFeeRate.IsNegative(), c.Costs.PackagingCost.IsNegative():
		return fmt.Errorf("%w: costs must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Repository persists the singleton config.
type Repository interface {
	GetFinancialConfig(ctx context.Context) (*Config, error)
	SaveFinancialConfig(ctx context.Context, cfg *Config) error
}

// Service reads and updates the financial config.
type Service struct {
	repo   Repository
	logger *otelzap.Logger
	now    func() time.Time
}

// NewService creates a service.
func NewService(repo Repository, logger *otelzap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Get returns the stored config, or Defaults when none was saved.
func (s *Service) Get(ctx context.Context) (Config, error) {
	cfg, err := s.repo.GetFinancialConfig(ctx)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("loading financial config: %w", err)
	}
	return *cfg, nil
}

// ViewFor returns the config as role may see it.
func (s *Service) ViewFor(ctx context.Context, role string) (View, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return View{}, err
	}
	return cfg.View(role), nil
}

// Update replaces the config. Only the owner may do so.
func (s *Service) Update(ctx context.Context, role string, cfg Config) (Config, error) {
	if role != RoleOwner {
		return Config{}, ErrForbidden
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveFinancialConfig(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("saving financial config: %w", err)
	}
	s.logger.Ctx(ctx).Info("Financial config updated",
		zap.String("free_shipping_threshold", cfg.FreeShippingThreshold.String()),
		zap.Int("max_installments", cfg.MaxInstallments),
	)
	return cfg, nil
}

// FreeShippingThreshold returns the cart subtotal that earns free shipping.
// Zero disables free shipping.
func (s *Service) FreeShippingThreshold(ctx context.Context) (decimal.Decimal, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.FreeShippingThreshold, nil
}
