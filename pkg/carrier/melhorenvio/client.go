// Package melhorenvio integrates the Melhor Envio logistics API: OAuth
// connection, rate calculation, pickup agencies and tracking.
package melhorenvio

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const carrierName = "melhorenvio"

// timeLayout is the provider's timestamp format.
const timeLayout = "2006-01-02 15:04:05"

// Settings is the connection data for the provider, read on every call.
type Settings struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserAgent    string
	Scopes       string

	// Add-on services requested on every quote.
	Receipt bool
	OwnHand bool
}

// Config selects and tunes the API client.
type Config struct {
	Settings func() Settings
	Timeout  time.Duration
	UseMock  bool // When true, uses mock API client
}

// NewAPIClient returns the mock or HTTP API client for cfg.
func NewAPIClient(cfg Config) APIClient {
	if cfg.UseMock {
		return NewMockAPIClient()
	}
	return NewHTTPAPIClient(HTTPAPIClientConfig{
		Settings: cfg.Settings,
		Timeout:  cfg.Timeout,
	})
}

// ErrorObserver records carrier failures.
type ErrorObserver interface {
	RecordCarrierError(operation, errorType string)
}

// Client is the Melhor Envio carrier client. It implements shipping.Carrier
// and takes bearer tokens from a TokenStore.
type Client struct {
	apiClient APIClient
	tokens    *TokenStore
	settings  func() Settings
	observer  ErrorObserver
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// NewWithAPIClient creates a client over apiClient. A nil tracer disables spans.
func NewWithAPIClient(apiClient APIClient, tokens *TokenStore, settings func() Settings, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(carrierName)
	}
	return &Client{
		apiClient: apiClient,
		tokens:    tokens,
		settings:  settings,
		logger:    logger,
		tracer:    tracer,
	}
}

// WithErrorObserver records translated errors on o.
func (c *Client) WithErrorObserver(o ErrorObserver) *Client {
	c.observer = o
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// AuthorizeURL returns the provider consent page for state.
func (c *Client) AuthorizeURL(state string) string {
	s := c.settings()
	q := url.Values{}
	q.Set("client_id", s.ClientID)
	q.Set("redirect_uri", s.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", s.Scopes)
	return strings.TrimRight(s.BaseURL, "/") + "/oauth/authorize?" + q.Encode()
}

// Exchange trades an authorization code for a token and stores it.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx, span := c.tracer.Start(ctx, "melhorenvio.Exchange")
	defer span.End()

	resp, err := c.apiClient.ExchangeCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		c.logger.Ctx(ctx).Error("Melhor Envio code exchange failed", zap.Error(err))
		return nil, err
	}

	tok, err := c.tokens.SaveResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	c.logger.Ctx(ctx).Info("Melhor Envio connected",
		zap.String("environment", tok.Environment),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

// Quote calculates every service for the parcels in one call.
func (c *Client) Quote(ctx context.Context, req *shipping.CarrierQuoteRequest) ([]shipping.Option, error) {
	ctx, span := c.tracer.Start(ctx, "melhorenvio.Quote", trace.WithAttributes(
		attribute.String("destination_zip", req.DestinationZip),
		attribute.Int("parcel_count", len(req.Parcels)),
	))
	defer span.End()

	tok, err := c.tokens.Valid(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "quote", err)
	}

	apiReq := &CalculateRequest{
		From:     PostalCodeRef{PostalCode: req.OriginZip},
		To:       PostalCodeRef{PostalCode: req.DestinationZip},
		Products: parcelsToProducts(req.Parcels),
	}
	if s := c.settings(); s.Receipt || s.OwnHand {
		apiReq.Options = &CalculateOptions{Receipt: s.Receipt, OwnHand: s.OwnHand}
	}

	services, err := c.apiClient.Calculate(ctx, tok.AccessToken, apiReq)
	if err != nil {
		return nil, c.fail(ctx, span, "quote", err)
	}

	options := make([]shipping.Option, 0, len(services))
	for _, svc := range services {
		options = append(options, serviceToOption(svc))
	}
	return options, nil
}

// PickupPoints lists agencies near postalCode.
func (c *Client) PickupPoints(ctx context.Context, postalCode string) ([]shipping.PickupPoint, error) {
	ctx, span := c.tracer.Start(ctx, "melhorenvio.PickupPoints")
	defer span.End()

	tok, err := c.tokens.Valid(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "pickups", err)
	}

	agencies, err := c.apiClient.Agencies(ctx, tok.AccessToken, postalCode)
	if err != nil {
		return nil, c.fail(ctx, span, "pickups", err)
	}

	points := make([]shipping.PickupPoint, 0, len(agencies))
	for _, a := range agencies {
		points = append(points, agencyToPickupPoint(a))
	}
	return points, nil
}

// Track returns the status of one code.
func (c *Client) Track(ctx context.Context, code string) (*shipping.TrackingStatus, error) {
	ctx, span := c.tracer.Start(ctx, "melhorenvio.Track", trace.WithAttributes(
		attribute.String("tracking_code", code),
	))
	defer span.End()

	tok, err := c.tokens.Valid(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "track", err)
	}

	info, err := c.apiClient.Tracking(ctx, tok.AccessToken, code)
	if err != nil {
		return nil, c.fail(ctx, span, "track", err)
	}
	return trackingToStatus(code, info), nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	translated := translateError(err)
	if errors.Is(err, ErrUnauthorized) {
		// The cached token was revoked. Not retried here.
		c.tokens.Invalidate()
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, translated.Code)
	if c.observer != nil {
		c.observer.RecordCarrierError(operation, translated.Code)
	}
	c.logger.Ctx(ctx).Warn("Melhor Envio call failed",
		zap.String("operation", operation),
		zap.String("code", translated.Code),
		zap.Error(err),
	)
	return translated
}

// translateError maps token and API failures onto shipping error codes.
func translateError(err error) *shipping.Error {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrNotConnected):
		return shipping.NewError(carrierName, shipping.CodeNotConnected, "carrier account not connected").WithCause(err)
	case errors.Is(err, ErrRefreshFailed):
		return shipping.NewError(carrierName, shipping.CodeUnauthorized, "carrier token refresh rejected").WithCause(err)
	case errors.Is(err, ErrUnauthorized):
		return shipping.NewError(carrierName, shipping.CodeUnauthorized, "carrier rejected credentials").
			WithCause(err).WithStatusCode(http.StatusUnauthorized)
	case errors.Is(err, ErrTrackingNotFound):
		return shipping.NewError(carrierName, shipping.CodeInvalidRequest, "tracking code not found").WithCause(err)
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity {
			return shipping.NewError(carrierName, shipping.CodeInvalidRequest, apiErr.Message).
				WithCause(err).WithStatusCode(apiErr.StatusCode)
		}
		retryable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
		return shipping.NewError(carrierName, shipping.CodeProviderUnavailable, "carrier request failed").
			WithCause(err).WithStatusCode(apiErr.StatusCode).WithRetryable(retryable)
	default:
		return shipping.NewError(carrierName, shipping.CodeProviderUnavailable, "carrier request failed").
			WithCause(err).WithRetryable(true)
	}
}

func parcelsToProducts(parcels []shipping.Parcel) []Product {
	products := make([]Product, 0, len(parcels))
	for _, p := range parcels {
		products = append(products, Product{
			ID:             p.ProductID,
			Width:          p.Dimensions.WidthCm,
			Height:         p.Dimensions.HeightCm,
			Length:         p.Dimensions.LengthCm,
			Weight:         p.WeightKg,
			InsuranceValue: p.UnitValue.InexactFloat64(),
			Quantity:       p.Quantity,
		})
	}
	return products
}

func serviceToOption(svc ServiceQuote) shipping.Option {
	customerPrice := svc.CustomPrice
	if !customerPrice.IsPositive() {
		customerPrice = svc.Price
	}
	currency := svc.Currency
	if currency == "" || currency == "R$" {
		currency = "BRL"
	}
	return shipping.Option{
		ServiceID:     strconv.Itoa(svc.ID),
		ServiceName:   svc.Name,
		Company:       svc.Company.Name,
		CompanyLogo:   svc.Company.Picture,
		Price:         svc.Price,
		CustomerPrice: customerPrice,
		Currency:      currency,
		DeliveryDays:  svc.DeliveryTime,
		DeliveryMin:   svc.DeliveryRange.Min,
		DeliveryMax:   svc.DeliveryRange.Max,
		Unavailable:   svc.Error,
	}
}

func agencyToPickupPoint(a Agency) shipping.PickupPoint {
	company := ""
	if len(a.Companies) > 0 {
		company = a.Companies[0].Name
	}
	return shipping.PickupPoint{
		ID:         strconv.Itoa(a.ID),
		Name:       a.Name,
		Company:    company,
		Street:     a.Address.Address,
		Number:     a.Address.Number,
		District:   a.Address.District,
		City:       a.Address.City.City,
		State:      a.Address.City.State.StateAbbr,
		PostalCode: a.Address.PostalCode,
		Phone:      a.Phone.Phone,
		Latitude:   a.Address.Latitude,
		Longitude:  a.Address.Longitude,
	}
}

func trackingToStatus(code string, info *TrackingInfo) *shipping.TrackingStatus {
	status := &shipping.TrackingStatus{
		Code:            code,
		Status:          info.Status,
		CarrierTracking: info.Tracking,
		TrackingURL:     info.TrackingURL,
		PostedAt:        parseTime(info.PostedAt),
		DeliveredAt:     parseTime(info.DeliveredAt),
	}
	for _, ts := range []*string{info.DeliveredAt, info.PostedAt, info.PaidAt, info.CreatedAt} {
		if t := parseTime(ts); t != nil {
			status.UpdatedAt = t
			break
		}
	}
	return status
}

func parseTime(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(timeLayout, *raw, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// Ensure Client implements shipping.Carrier interface
var _ shipping.Carrier = (*Client)(nil)
