package shipping

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tracking result states.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Dimensions of a parcel in centimeters.
type Dimensions struct {
	HeightCm float64 `json:"height"`
	WidthCm  float64 `json:"width"`
	LengthCm float64 `json:"length"`
}

// IsZero reports whether no dimension is set.
func (d Dimensions) IsZero() bool {
	return d.HeightCm <= 0 && d.WidthCm <= 0 && d.LengthCm <= 0
}

// QuoteItem is one cart line in a quote request. Optional fields override
// the product's own package data.
type QuoteItem struct {
	ProductID  string
	Quantity   int
	WeightKg   *float64
	Dimensions *Dimensions
	Price      *decimal.Decimal
}

// QuoteRequest is a cart plus destination.
type QuoteRequest struct {
	DestinationZip string
	Items          []QuoteItem
}

// Parcel is a fully resolved cart line sent to the carrier.
type Parcel struct {
	ProductID  string
	Quantity   int
	WeightKg   float64
	Dimensions Dimensions
	UnitValue  decimal.Decimal
}

// CarrierQuoteRequest batches every parcel of a cart into one carrier call.
type CarrierQuoteRequest struct {
	OriginZip      string
	DestinationZip string
	Parcels        []Parcel
}

// Option is a shipping service offered for a cart.
type Option struct {
	ServiceID     string          `json:"serviceId"`
	ServiceName   string          `json:"serviceName"`
	Company       string          `json:"company"`
	CompanyLogo   string          `json:"companyLogo,omitempty"`
	Price         decimal.Decimal `json:"price"`
	CustomerPrice decimal.Decimal `json:"customerPrice"`
	FreeShipping  bool            `json:"freeShipping"`
	Currency      string          `json:"currency"`
	DeliveryDays  int             `json:"deliveryDays"`
	DeliveryMin   int             `json:"deliveryMin"`
	DeliveryMax   int             `json:"deliveryMax"`

	// Unavailable carries the carrier's reason when it cannot serve the cart.
	Unavailable string `json:"-"`
}

// PickupPoint is an agency where a parcel can be dropped or collected.
type PickupPoint struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Company    string  `json:"company"`
	Street     string  `json:"street"`
	Number     string  `json:"number"`
	District   string  `json:"district"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode"`
	Phone      string  `json:"phone,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// TrackingStatus is the carrier's view of one shipment.
type TrackingStatus struct {
	Code            string     `json:"code"`
	Status          string     `json:"status"`
	CarrierTracking string     `json:"carrierTracking,omitempty"`
	TrackingURL     string     `json:"trackingUrl,omitempty"`
	PostedAt        *time.Time `json:"postedAt,omitempty"`
	DeliveredAt     *time.Time `json:"deliveredAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// TrackingResult is the per-code outcome of a batch tracking call.
type TrackingResult struct {
	Code     string          `json:"code"`
	Status   string          `json:"status"`
	Tracking *TrackingStatus `json:"tracking,omitempty"`
	Error    string          `json:"error,omitempty"`
}
