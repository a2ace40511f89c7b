// Package mock provides an in-memory carrier for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipping"
)

// Carrier is a mock shipping.Carrier. Hooks override the canned answers.
type Carrier struct {
	name string

	OnQuote        func(ctx context.Context, req *shipping.CarrierQuoteRequest) ([]shipping.Option, error)
	OnPickupPoints func(ctx context.Context, postalCode string) ([]shipping.PickupPoint, error)
	OnTrack        func(ctx context.Context, code string) (*shipping.TrackingStatus, error)

	QuoteCalls atomic.Int64
	TrackCalls atomic.Int64

	mu        sync.Mutex
	lastQuote *shipping.CarrierQuoteRequest
}

// New creates a new mock carrier.
func New(name string) *Carrier {
	return &Carrier{name: name}
}

// Name returns the carrier name.
func (c *Carrier) Name() string {
	return c.name
}

// LastQuote returns the most recent quote request the carrier received.
func (c *Carrier) LastQuote() *shipping.CarrierQuoteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuote
}

// Quote returns two priced services and one the carrier cannot serve.
func (c *Carrier) Quote(ctx context.Context, req *shipping.CarrierQuoteRequest) ([]shipping.Option, error) {
	c.QuoteCalls.Add(1)
	c.mu.Lock()
	c.lastQuote = req
	c.mu.Unlock()

	if c.OnQuote != nil {
		return c.OnQuote(ctx, req)
	}

	return []shipping.Option{
		{
			ServiceID:    "2",
			ServiceName:  "SEDEX",
			Company:      c.name,
			Price:        decimal.RequireFromString("31.20"),
			Currency:     "BRL",
			DeliveryDays: 2,
			DeliveryMin:  1,
			DeliveryMax:  2,
		},
		{
			ServiceID:    "1",
			ServiceName:  "PAC",
			Company:      c.name,
			Price:        decimal.RequireFromString("18.90"),
			Currency:     "BRL",
			DeliveryDays: 6,
			DeliveryMin:  5,
			DeliveryMax:  6,
		},
		{
			ServiceID:   "17",
			ServiceName: "Mini Envios",
			Company:     c.name,
			Unavailable: "Dimensões do objeto ultrapassam o limite",
		},
	}, nil
}

// PickupPoints returns a single agency at the requested postal code.
func (c *Carrier) PickupPoints(ctx context.Context, postalCode string) ([]shipping.PickupPoint, error) {
	if c.OnPickupPoints != nil {
		return c.OnPickupPoints(ctx, postalCode)
	}
	return []shipping.PickupPoint{
		{
			ID:         fmt.Sprintf("%s-agency-1", c.name),
			Name:       "Agência Centro",
			Company:    c.name,
			Street:     "Rua Principal",
			Number:     "100",
			District:   "Centro",
			City:       "São Paulo",
			State:      "SP",
			PostalCode: postalCode,
		},
	}, nil
}

// Track reports every code as posted.
func (c *Carrier) Track(ctx context.Context, code string) (*shipping.TrackingStatus, error) {
	c.TrackCalls.Add(1)
	if c.OnTrack != nil {
		return c.OnTrack(ctx, code)
	}
	now := time.Now()
	return &shipping.TrackingStatus{
		Code:            code,
		Status:          "posted",
		CarrierTracking: fmt.Sprintf("BR%d", now.UnixNano()%1000000000),
		PostedAt:        &now,
		UpdatedAt:       &now,
	}, nil
}
