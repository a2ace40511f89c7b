package catalog

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Result is a single product tagged with the source that served it.
type Result struct {
	Source  Source   `json:"source"`
	Product *Product `json:"product"`
}

// ListResult is a product page tagged with the source that served it.
type ListResult struct {
	Source   Source    `json:"source"`
	Products []Product `json:"products"`
}

// Router dispatches product reads to the external feed when it is
// configured and to the local store otherwise. It is a static switch:
// a failing feed is reported as-is and never answered from local data.
type Router struct {
	local   Store
	feed    Store
	enabled func() bool
	logger  *otelzap.Logger
}

// NewRouter creates a router. enabled is evaluated on every call so a
// configuration reload takes effect without restarting.
func NewRouter(local, feed Store, enabled func() bool, logger *otelzap.Logger) *Router {
	return &Router{
		local:   local,
		feed:    feed,
		enabled: enabled,
		logger:  logger,
	}
}

// ExternalEnabled reports whether requests currently go to the external feed.
func (r *Router) ExternalEnabled() bool {
	return r.feed != nil && r.enabled != nil && r.enabled()
}

func (r *Router) pick() (Store, Source) {
	if r.ExternalEnabled() {
		return r.feed, SourceExternal
	}
	return r.local, SourceLocal
}

// GetProduct returns one product from the selected source.
func (r *Router) GetProduct(ctx context.Context, id string) (*Result, error) {
	store, source := r.pick()

	product, err := store.GetProduct(ctx, id)
	if err != nil {
		r.logger.Ctx(ctx).Debug("Product lookup failed",
			zap.String("product_id", id),
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return nil, err
	}
	return &Result{Source: source, Product: product}, nil
}

// ListProducts returns a product page from the selected source.
func (r *Router) ListProducts(ctx context.Context, filter Filter) (*ListResult, error) {
	store, source := r.pick()

	products, err := store.ListProducts(ctx, filter.Normalize())
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return &ListResult{Source: source, Products: products}, nil
}
