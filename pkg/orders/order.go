package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle errors.
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrInvalidOrder      = errors.New("invalid order")
)

// TransitionError describes a rejected transition. It matches ErrInvalidTransition.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Item is an order line with the price captured at checkout.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Customer is the buyer contact captured at checkout.
type Customer struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
}

// Address is the shipping address captured at checkout.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// Order is a placed order. Total never changes after placement.
type Order struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	Status          Status          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	Items           []Item          `json:"items"`
	Customer        Customer        `json:"customer"`
	ShippingAddress Address         `json:"shippingAddress"`
	TrackingCode    string          `json:"trackingCode,omitempty"`
	TrackingURL     string          `json:"trackingUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
}

// TransitionEvent is the payload handed to the notifier after a committed
// transition.
type TransitionEvent struct {
	OrderID         string          `json:"orderId"`
	OrderNumber     string          `json:"orderNumber"`
	PreviousStatus  Status          `json:"previousStatus"`
	Status          Status          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	Customer        Customer        `json:"customer"`
	ShippingAddress Address         `json:"shippingAddress"`
	TrackingCode    string          `json:"trackingCode,omitempty"`
	TrackingURL     string          `json:"trackingUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
}

func newTransitionEvent(o *Order, previous Status) TransitionEvent {
	return TransitionEvent{
		OrderID:         o.ID,
		OrderNumber:     o.Number,
		PreviousStatus:  previous,
		Status:          o.Status,
		Total:           o.Total,
		Customer:        o.Customer,
		ShippingAddress: o.ShippingAddress,
		TrackingCode:    o.TrackingCode,
		TrackingURL:     o.TrackingURL,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
	}
}
