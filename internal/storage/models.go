package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
	"github.com/tournevent/fulfillment/pkg/orders"
)

// financialConfigID is the primary key of the singleton financial config row.
const financialConfigID = 1

type carrierTokenModel struct {
	Environment  string    `gorm:"primaryKey;size:16"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text;not null"`
	Scope        string    `gorm:"size:512"`
	ExpiresAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (carrierTokenModel) TableName() string { return "carrier_tokens" }

func (m *carrierTokenModel) toDomain() *melhorenvio.Token {
	return &melhorenvio.Token{
		Environment:  m.Environment,
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		Scope:        m.Scope,
		ExpiresAt:    m.ExpiresAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type orderModel struct {
	ID             string          `gorm:"primaryKey;size:36"`
	Number         string          `gorm:"size:32;uniqueIndex;not null"`
	Status         string          `gorm:"size:16;index:idx_orders_status_created;not null"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UserID         string          `gorm:"size:64;index;not null"`
	CustomerName   string          `gorm:"size:255"`
	CustomerEmail  string          `gorm:"size:255"`
	CustomerPhone  string          `gorm:"size:32"`
	ShipStreet     string          `gorm:"size:255"`
	ShipNumber     string          `gorm:"size:32"`
	ShipComplement string          `gorm:"size:255"`
	ShipDistrict   string          `gorm:"size:128"`
	ShipCity       string          `gorm:"size:128"`
	ShipState      string          `gorm:"size:8"`
	ShipPostalCode string          `gorm:"size:16"`
	TrackingCode   string          `gorm:"size:64"`
	TrackingURL    string          `gorm:"size:512"`
	CreatedAt      time.Time       `gorm:"index:idx_orders_status_created;not null;autoCreateTime:false"`
	UpdatedAt      time.Time       `gorm:"not null;autoUpdateTime:false"`
	PaidAt         *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	Items          []orderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	OrderID   string          `gorm:"size:36;index;not null"`
	Position  int             `gorm:"not null"`
	ProductID string          `gorm:"size:64;not null"`
	Name      string          `gorm:"size:255"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

func orderModelFromDomain(o *orders.Order) *orderModel {
	m := &orderModel{
		ID:             o.ID,
		Number:         o.Number,
		Status:         string(o.Status),
		Total:          o.Total,
		UserID:         o.Customer.UserID,
		CustomerName:   o.Customer.Name,
		CustomerEmail:  o.Customer.Email,
		CustomerPhone:  o.Customer.Phone,
		ShipStreet:     o.ShippingAddress.Street,
		ShipNumber:     o.ShippingAddress.Number,
		ShipComplement: o.ShippingAddress.Complement,
		ShipDistrict:   o.ShippingAddress.District,
		ShipCity:       o.ShippingAddress.City,
		ShipState:      o.ShippingAddress.State,
		ShipPostalCode: o.ShippingAddress.PostalCode,
		TrackingCode:   o.TrackingCode,
		TrackingURL:    o.TrackingURL,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
		PaidAt:         o.PaidAt,
		ShippedAt:      o.ShippedAt,
		DeliveredAt:    o.DeliveredAt,
	}
	for i, item := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			OrderID:   o.ID,
			Position:  i,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return m
}

func (m *orderModel) toDomain() orders.Order {
	o := orders.Order{
		ID:     m.ID,
		Number: m.Number,
		Status: orders.Status(m.Status),
		Total:  m.Total,
		Customer: orders.Customer{
			UserID: m.UserID,
			Name:   m.CustomerName,
			Email:  m.CustomerEmail,
			Phone:  m.CustomerPhone,
		},
		ShippingAddress: orders.Address{
			Street:     m.ShipStreet,
			Number:     m.ShipNumber,
			Complement: m.ShipComplement,
			District:   m.ShipDistrict,
			City:       m.ShipCity,
			State:      m.ShipState,
			PostalCode: m.ShipPostalCode,
		},
		TrackingCode: m.TrackingCode,
		TrackingURL:  m.TrackingURL,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		PaidAt:       m.PaidAt,
		ShippedAt:    m.ShippedAt,
		DeliveredAt:  m.DeliveredAt,
		Items:        make([]orders.Item, 0, len(m.Items)),
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, orders.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return o
}

type productModel struct {
	ID            string          `gorm:"primaryKey;size:64"`
	Name          string          `gorm:"size:255;index;not null"`
	SKU           string          `gorm:"size:64;index"`
	Stock         int             `gorm:"not null;default:0"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StockLocation string          `gorm:"size:128"`
	Images        []string        `gorm:"serializer:json"`
	WeightKg      float64
	HeightCm      float64
	WidthCm       float64
	LengthCm      float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (productModel) TableName() string { return "products" }

func productModelFromDomain(p *catalog.Product) *productModel {
	return &productModel{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Stock:         p.Stock,
		Price:         p.Price,
		StockLocation: p.StockLocation,
		Images:        p.Images,
		WeightKg:      p.WeightKg,
		HeightCm:      p.HeightCm,
		WidthCm:       p.WidthCm,
		LengthCm:      p.LengthCm,
	}
}

func (m *productModel) toDomain() catalog.Product {
	images := m.Images
	if images == nil {
		images = []string{}
	}
	return catalog.Product{
		ID:            m.ID,
		Name:          m.Name,
		SKU:           m.SKU,
		Stock:         m.Stock,
		Price:         m.Price,
		StockLocation: m.StockLocation,
		Images:        images,
		WeightKg:      m.WeightKg,
		HeightCm:      m.HeightCm,
		WidthCm:       m.WidthCm,
		LengthCm:      m.LengthCm,
	}
}

type financialConfigModel struct {
	ID                    uint            `gorm:"primaryKey;autoIncrement:false"`
	InterestRate          decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	MaxInstallments       int             `gorm:"not null"`
	MinInstallmentValue   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	FreeShippingThreshold decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Markup                decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	PaymentFeeRate        decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	PackagingCost         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UpdatedAt             time.Time       `gorm:"not null;autoUpdateTime:false"`
}

func (financialConfigModel) TableName() string { return "financial_config" }

func financialConfigModelFromDomain(c *finance.Config) *financialConfigModel {
	return &financialConfigModel{
		ID:                    financialConfigID,
		InterestRate:          c.InterestRate,
		MaxInstallments:       c.MaxInstallments,
		MinInstallmentValue:   c.MinInstallmentValue,
		FreeShippingThreshold: c.FreeShippingThreshold,
		Markup:                c.Markup,
		PaymentFeeRate:        c.Costs.PaymentFeeRate,
		PackagingCost:         c.Costs.PackagingCost,
		UpdatedAt:             c.UpdatedAt.UTC(),
	}
}

func (m *financialConfigModel) toDomain() *finance.Config {
	return &finance.Config{
		InterestRate:          m.InterestRate,
		MaxInstallments:       m.MaxInstallments,
		MinInstallmentValue:   m.MinInstallmentValue,
		FreeShippingThreshold: m.FreeShippingThreshold,
		Markup:                m.Markup,
		Costs: finance.Costs{
			PaymentFeeRate: m.PaymentFeeRate,
			PackagingCost:  m.PackagingCost,
		},
		UpdatedAt: m.UpdatedAt,
	}
}
