// Package shipping turns carts into ranked shipping options, pickup points
// and tracking statuses on top of a single carrier integration.
package shipping

import (
	"context"
)

// Carrier defines the operations a logistics provider integration must implement.
type Carrier interface {
	// Name returns the carrier identifier.
	Name() string

	// Quote returns the services able to deliver the parcels, in carrier order.
	Quote(ctx context.Context, req *CarrierQuoteRequest) ([]Option, error)

	// PickupPoints returns agencies near a postal code.
	PickupPoints(ctx context.Context, postalCode string) ([]PickupPoint, error)

	// Track returns the current status of one tracking code.
	Track(ctx context.Context, code string) (*TrackingStatus, error)
}
