package shipping

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minPostalCodeDigits = 8
	trackConcurrency    = 4
)

// Settings are the quote parameters read from configuration on every call.
type Settings struct {
	OriginZip       string
	DefaultWeightKg float64
	DefaultSize     Dimensions
}

// ProductLookup resolves package data for cart items.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*catalog.Result, error)
}

// ThresholdSource provides the cart subtotal at which shipping becomes free.
type ThresholdSource interface {
	FreeShippingThreshold(ctx context.Context) (decimal.Decimal, error)
}

// Aggregator validates carts, resolves package data and ranks carrier options.
type Aggregator struct {
	carrier   Carrier
	products  ProductLookup
	threshold ThresholdSource
	settings  func() Settings
	logger    *otelzap.Logger
}

// NewAggregator creates an aggregator. products and threshold may be nil.
func NewAggregator(carrier Carrier, products ProductLookup, threshold ThresholdSource, settings func() Settings, logger *otelzap.Logger) *Aggregator {
	return &Aggregator{
		carrier:   carrier,
		products:  products,
		threshold: threshold,
		settings:  settings,
		logger:    logger,
	}
}

// Quote returns the carrier's services for a cart, cheapest first.
func (a *Aggregator) Quote(ctx context.Context, req *QuoteRequest) ([]Option, error) {
	destZip, err := validateQuote(req)
	if err != nil {
		return nil, err
	}

	settings := a.settings()
	originZip := NormalizePostalCode(settings.OriginZip)
	if originZip == "" {
		a.logger.Ctx(ctx).Error("Origin postal code not configured")
		return nil, NewError(a.carrier.Name(), CodeProviderUnavailable, "origin postal code not configured")
	}

	parcels, subtotal := a.resolveParcels(ctx, req.Items, settings)

	options, err := a.carrier.Quote(ctx, &CarrierQuoteRequest{
		OriginZip:      originZip,
		DestinationZip: destZip,
		Parcels:        parcels,
	})
	if err != nil {
		return nil, a.carrierError(err)
	}

	options = rank(options)

	if a.qualifiesForFreeShipping(ctx, subtotal) {
		for i := range options {
			options[i].FreeShipping = true
			options[i].CustomerPrice = decimal.Zero
		}
	}

	return options, nil
}

// PickupPoints returns agencies near a postal code.
func (a *Aggregator) PickupPoints(ctx context.Context, postalCode string) ([]PickupPoint, error) {
	zip := NormalizePostalCode(postalCode)
	if len(zip) < minPostalCodeDigits {
		return nil, invalid("postal code must have at least %d digits", minPostalCodeDigits)
	}

	points, err := a.carrier.PickupPoints(ctx, zip)
	if err != nil {
		return nil, a.carrierError(err)
	}
	if points == nil {
		points = []PickupPoint{}
	}
	return points, nil
}

// Track looks up every code independently. A failing code is reported in
// its own result and never fails the batch. The returned slice follows the
// order of first appearance in codes.
func (a *Aggregator) Track(ctx context.Context, codes []string) ([]TrackingResult, error) {
	unique := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	if len(unique) == 0 {
		return nil, invalid("at least one tracking code is required")
	}

	results := make([]TrackingResult, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trackConcurrency)

	for i, code := range unique {
		i, code := i, code
		g.Go(func() error {
			status, err := a.carrier.Track(gctx, code)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Ctx(ctx).Warn("Tracking lookup failed",
					zap.String("code", code),
					zap.Error(err),
				)
				results[i] = TrackingResult{Code: code, Status: ResultError, Error: trackingMessage(err)}
				return nil
			}
			results[i] = TrackingResult{Code: code, Status: ResultOK, Tracking: status}
			return nil
		})
	}

	_ = g.Wait()
	return results, nil
}

func validateQuote(req *QuoteRequest) (string, error) {
	if req == nil || len(req.Items) == 0 {
		return "", invalid("at least one item is required")
	}
	zip := NormalizePostalCode(req.DestinationZip)
	if len(zip) < minPostalCodeDigits {
		return "", invalid("postal code must have at least %d digits", minPostalCodeDigits)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", invalid("item %d: productId is required", i)
		}
		if item.Quantity < 1 {
			return "", invalid("item %d: quantity must be at least 1", i)
		}
	}
	return zip, nil
}

// resolveParcels fills every missing field from the product and then from
// the configured defaults. Product lookup failures degrade to defaults.
func (a *Aggregator) resolveParcels(ctx context.Context, items []QuoteItem, settings Settings) ([]Parcel, decimal.Decimal) {
	parcels := make([]Parcel, 0, len(items))
	subtotal := decimal.Zero

	for _, item := range items {
		parcel := Parcel{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitValue: decimal.Zero,
		}

		var product *catalog.Product
		if item.WeightKg == nil || item.Dimensions == nil || item.Price == nil {
			product = a.lookup(ctx, item.ProductID)
		}

		switch {
		case item.WeightKg != nil && *item.WeightKg > 0:
			parcel.WeightKg = *item.WeightKg
		case product != nil && product.WeightKg > 0:
			parcel.WeightKg = product.WeightKg
		default:
			parcel.WeightKg = settings.DefaultWeightKg
		}

		switch {
		case item.Dimensions != nil && !item.Dimensions.IsZero():
			parcel.Dimensions = *item.Dimensions
		case product != nil && (product.HeightCm > 0 || product.WidthCm > 0 || product.LengthCm > 0):
			parcel.Dimensions = Dimensions{HeightCm: product.HeightCm, WidthCm: product.WidthCm, LengthCm: product.LengthCm}
		default:
			parcel.Dimensions = settings.DefaultSize
		}
		parcel.Dimensions = fillDimensions(parcel.Dimensions, settings.DefaultSize)

		switch {
		case item.Price != nil:
			parcel.UnitValue = *item.Price
		case product != nil:
			parcel.UnitValue = product.Price
		}

		subtotal = subtotal.Add(parcel.UnitValue.Mul(decimal.NewFromInt(int64(parcel.Quantity))))
		parcels = append(parcels, parcel)
	}

	return parcels, subtotal
}

func (a *Aggregator) lookup(ctx context.Context, productID string) *catalog.Product {
	if a.products == nil {
		return nil
	}
	res, err := a.products.GetProduct(ctx, productID)
	if err != nil || res == nil {
		a.logger.Ctx(ctx).Warn("Using package defaults",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return nil
	}
	return res.Product
}

func fillDimensions(d, defaults Dimensions) Dimensions {
	if d.HeightCm <= 0 {
		d.HeightCm = defaults.HeightCm
	}
	if d.WidthCm <= 0 {
		d.WidthCm = defaults.WidthCm
	}
	if d.LengthCm <= 0 {
		d.LengthCm = defaults.LengthCm
	}
	return d
}

func (a *Aggregator) qualifiesForFreeShipping(ctx context.Context, subtotal decimal.Decimal) bool {
	if a.threshold == nil {
		return false
	}
	threshold, err := a.threshold.FreeShippingThreshold(ctx)
	if err != nil {
		a.logger.Ctx(ctx).Warn("Free shipping threshold unavailable", zap.Error(err))
		return false
	}
	return threshold.IsPositive() && subtotal.GreaterThanOrEqual(threshold)
}

// rank drops services the carrier could not price and orders the rest by
// price, then delivery time. Equal options keep carrier order.
func rank(options []Option) []Option {
	usable := make([]Option, 0, len(options))
	for _, opt := range options {
		if opt.Unavailable != "" || !opt.Price.IsPositive() {
			continue
		}
		if opt.CustomerPrice.IsZero() {
			opt.CustomerPrice = opt.Price
		}
		usable = append(usable, opt)
	}

	sort.SliceStable(usable, func(i, j int) bool {
		if !usable[i].Price.Equal(usable[j].Price) {
			return usable[i].Price.LessThan(usable[j].Price)
		}
		return usable[i].DeliveryDays < usable[j].DeliveryDays
	})
	return usable
}

// carrierError guarantees callers only ever see *Error values.
func (a *Aggregator) carrierError(err error) error {
	var shipErr *Error
	if errors.As(err, &shipErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(a.carrier.Name(), CodeProviderUnavailable, "carrier request timed out").WithCause(err).WithRetryable(true)
	}
	return NewError(a.carrier.Name(), CodeProviderUnavailable, "carrier request failed").WithCause(err).WithRetryable(true)
}

func trackingMessage(err error) string {
	var shipErr *Error
	if errors.As(err, &shipErr) {
		return shipErr.Message
	}
	return err.Error()
}

// NormalizePostalCode strips everything but digits.
func NormalizePostalCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
