// Package orders governs order status: placement, legal transitions and
// the lazy expiry of unpaid orders.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PendingTTL is how long an order may stay PENDING before the sweep cancels it.
const PendingTTL = 15 * time.Minute

// ListFilter narrows an order listing.
type ListFilter struct {
	UserID   string
	Statuses []Status
	Limit    int
	Offset   int
}

func (f ListFilter) normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// StatusUpdate is the column set written by one transition.
type StatusUpdate struct {
	To           Status
	UpdatedAt    time.Time
	PaidAt       *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	TrackingCode *string
	TrackingURL  *string
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)

	// UpdateStatus applies update only if the order is still in status from.
	// It reports whether a row changed.
	UpdateStatus(ctx context.Context, id string, from Status, update StatusUpdate) (bool, error)

	// ExpirePending cancels every PENDING order created before cutoff in one
	// statement and returns how many rows changed.
	ExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// Notifier receives committed transitions. It must not block.
type Notifier interface {
	Notify(payload any)
}

// Observer records lifecycle activity.
type Observer interface {
	RecordTransition(status string)
	RecordExpired(n int64)
}

// Details carries the optional data of a transition.
type Details struct {
	TrackingCode string
	TrackingURL  string
}

// PlaceInput is a checkout.
type PlaceInput struct {
	Items           []Item
	Customer        Customer
	ShippingAddress Address
	// Quote creates a non-committed estimate order instead of a PENDING one.
	Quote bool
}

// Lifecycle is the order state machine.
type Lifecycle struct {
	repo     Repository
	notifier Notifier
	observer Observer
	logger   *otelzap.Logger
	now      func() time.Time
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithObserver records transitions and expiries on o.
func WithObserver(o Observer) Option {
	return func(l *Lifecycle) { l.observer = o }
}

// WithClock overrides the lifecycle's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// NewLifecycle creates a lifecycle. notifier may be nil.
func NewLifecycle(repo Repository, notifier Notifier, logger *otelzap.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lifecycle) clock() time.Time {
	return l.now().UTC()
}

// Place creates an order in PENDING, or QUOTE for an estimate. The total is
// computed from the item price snapshots.
func (l *Lifecycle) Place(ctx context.Context, in PlaceInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(in.Customer.UserID) == "" {
		return nil, fmt.Errorf("%w: customer userId is required", ErrInvalidOrder)
	}

	total := decimal.Zero
	items := make([]Item, len(in.Items))
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("%w: item %d: productId is required", ErrInvalidOrder, i)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d: quantity must be at least 1", ErrInvalidOrder, i)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: unit price must not be negative", ErrInvalidOrder, i)
		}
		items[i] = item
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	status := StatusPending
	if in.Quote {
		status = StatusQuote
	}

	now := l.clock()
	order := &Order{
		ID:              uuid.New().String(),
		Number:          fmt.Sprintf("ORD-%d", now.UnixNano()),
		Status:          status,
		Total:           total,
		Items:           items,
		Customer:        in.Customer,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := l.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	l.logger.Ctx(ctx).Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// Sweep cancels PENDING orders older than PendingTTL. It is one conditional
// update and safe to run concurrently or repeatedly. Expired orders do not
// produce notifications.
func (l *Lifecycle) Sweep(ctx context.Context) (int64, error) {
	now := l.clock()
	n, err := l.repo.ExpirePending(ctx, now.Add(-PendingTTL), now)
	if err != nil {
		return 0, fmt.Errorf("expiring pending orders: %w", err)
	}
	if n > 0 {
		if l.observer != nil {
			l.observer.RecordExpired(n)
		}
		l.logger.Ctx(ctx).Info("Expired pending orders", zap.Int64("count", n))
	}
	return n, nil
}

// Get returns one order after sweeping.
func (l *Lifecycle) Get(ctx context.Context, id string) (*Order, error) {
	if _, err := l.Sweep(ctx); err != nil {
		return nil, err
	}
	return l.repo.Get(ctx, id)
}

// List returns orders for the admin listing after sweeping.
func (l *Lifecycle) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if _, err := l.Sweep(ctx); err != nil {
		return nil, err
	}
	return l.list(ctx, filter)
}

// ListShipped returns shipped orders after sweeping.
func (l *Lifecycle) ListShipped(ctx context.Context, filter ListFilter) ([]Order, error) {
	if _, err := l.Sweep(ctx); err != nil {
		return nil, err
	}
	filter.Statuses = []Status{StatusShipped}
	return l.list(ctx, filter)
}

// ListForUser returns one customer's orders after sweeping.
func (l *Lifecycle) ListForUser(ctx context.Context, userID string, filter ListFilter) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidOrder)
	}
	if _, err := l.Sweep(ctx); err != nil {
		return nil, err
	}
	filter.UserID = userID
	return l.list(ctx, filter)
}

func (l *Lifecycle) list(ctx context.Context, filter ListFilter) ([]Order, error) {
	orders, err := l.repo.List(ctx, filter.normalize())
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// Transition moves an order to status to. Illegal pairs fail with a
// *TransitionError and change nothing. The write is conditional on the
// status read, so a concurrent transition makes this one fail instead of
// overwriting it.
func (l *Lifecycle) Transition(ctx context.Context, id string, to Status, details Details) (*Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, to)
	}
	if _, err := l.Sweep(ctx); err != nil {
		return nil, err
	}

	order, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, &TransitionError{OrderID: id, From: from, To: to}
	}

	now := l.clock()
	update := StatusUpdate{To: to, UpdatedAt: now}
	switch to {
	case StatusConfirmed:
		update.PaidAt = &now
	case StatusShipped:
		update.ShippedAt = &now
	case StatusDelivered:
		update.DeliveredAt = &now
	}
	if code := strings.TrimSpace(details.TrackingCode); code != "" {
		update.TrackingCode = &code
	}
	if u := strings.TrimSpace(details.TrackingURL); u != "" {
		update.TrackingURL = &u
	}

	changed, err := l.repo.UpdateStatus(ctx, id, from, update)
	if err != nil {
		return nil, fmt.Errorf("updating order status: %w", err)
	}
	if !changed {
		current, err := l.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{OrderID: id, From: current.Status, To: to}
	}

	order.apply(update)

	if l.observer != nil {
		l.observer.RecordTransition(string(to))
	}
	l.logger.Ctx(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	if l.notifier != nil {
		l.notifier.Notify(newTransitionEvent(order, from))
	}
	return order, nil
}

func (o *Order) apply(u StatusUpdate) {
	o.Status = u.To
	o.UpdatedAt = u.UpdatedAt
	if u.PaidAt != nil {
		o.PaidAt = u.PaidAt
	}
	if u.ShippedAt != nil {
		o.ShippedAt = u.ShippedAt
	}
	if u.DeliveredAt != nil {
		o.DeliveredAt = u.DeliveredAt
	}
	if u.TrackingCode != nil {
		o.TrackingCode = *u.TrackingCode
	}
	if u.TrackingURL != nil {
		o.TrackingURL = *u.TrackingURL
	}
}
