// Package catalog serves product data from either the external catalog
// feed or the local store.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Source names where a product response came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceLocal    Source = "local"
)

var (
	// ErrProductNotFound indicates the selected source has no such product.
	ErrProductNotFound = errors.New("product not found")
	// ErrFeedUnavailable wraps every transport or upstream failure of the external feed.
	ErrFeedUnavailable = errors.New("catalog feed unavailable")
)

// Product is the subset of catalog data fulfillment needs.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Stock         int             `json:"stock"`
	Price         decimal.Decimal `json:"price"`
	StockLocation string          `json:"stockLocation,omitempty"`
	Images        []string        `json:"images"`
	WeightKg      float64         `json:"weightKg,omitempty"`
	HeightCm      float64         `json:"heightCm,omitempty"`
	WidthCm       float64         `json:"widthCm,omitempty"`
	LengthCm      float64         `json:"lengthCm,omitempty"`
}

// Filter narrows a product listing.
type Filter struct {
	Search   string
	Page     int
	PageSize int
}

// Normalize fills paging defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

// Store is a product source.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, filter Filter) ([]Product, error)
}
