package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/oauthstate"
	"github.com/tournevent/fulfillment/internal/server"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
	"github.com/tournevent/fulfillment/pkg/orders"
	"github.com/tournevent/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const settingsPage = "https://admin.example.com/settings/integrations"

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	srv      *server.Server
	api      *melhorenvio.MockAPIClient
	tokens   *storage.GormTokenRepository
	products *storage.GormProductRepository
	registry *prometheus.Registry
}

func newHarness(t *testing.T, connected bool) *harness {
	t.Helper()
	ctx := context.Background()
	logger := otelzap.New(zap.NewNop())

	db, err := storage.Open(storage.Options{
		Driver:       storage.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	tokenRepo := storage.NewTokenRepository(db.DB)
	productRepo := storage.NewProductRepository(db.DB)
	require.NoError(t, productRepo.SaveProduct(ctx, &catalog.Product{
		ID:       "p1",
		Name:     "Camiseta",
		SKU:      "TSH-01",
		Stock:    10,
		Price:    decimal.RequireFromString("49.90"),
		WeightKg: 0.3,
		HeightCm: 4,
		WidthCm:  20,
		LengthCm: 30,
	}))

	if connected {
		require.NoError(t, tokenRepo.SaveToken(ctx, &melhorenvio.Token{
			Environment:  "sandbox",
			AccessToken:  "live-token",
			RefreshToken: "refresh-token",
			Scope:        "shipping-calculate",
			ExpiresAt:    time.Now().Add(24 * time.Hour).UTC(),
			UpdatedAt:    time.Now().UTC(),
		}))
	}

	api := melhorenvio.NewMockAPIClient()
	tokens := melhorenvio.NewTokenStore(tokenRepo, api, func() melhorenvio.TokenSettings {
		return melhorenvio.TokenSettings{
			Environment:    "sandbox",
			SafetyMargin:   5 * time.Minute,
			RefreshTimeout: 5 * time.Second,
		}
	}, logger, melhorenvio.WithRefreshObserver(metrics))
	carrier := melhorenvio.NewWithAPIClient(api, tokens, func() melhorenvio.Settings {
		return melhorenvio.Settings{
			BaseURL:     "https://sandbox.melhorenvio.com.br",
			ClientID:    "42",
			RedirectURI: "https://shop.example.com/integrations/carrier/callback",
			UserAgent:   "fulfillment-test",
			Scopes:      "shipping-calculate",
		}
	}, logger, nil).WithErrorObserver(metrics)

	router := catalog.NewRouter(productRepo, nil, func() bool { return false }, logger)
	financeSvc := finance.NewService(storage.NewFinancialRepository(db.DB), logger)
	aggregator := shipping.NewAggregator(carrier, router, financeSvc, func() shipping.Settings {
		return shipping.Settings{
			OriginZip:       "01310-100",
			DefaultWeightKg: 0.3,
			DefaultSize:     shipping.Dimensions{HeightCm: 2, WidthCm: 11, LengthCm: 16},
		}
	}, logger)
	lifecycle := orders.NewLifecycle(storage.NewOrderRepository(db.DB), nil, logger, orders.WithObserver(metrics))

	srv := server.New(server.Config{
		Port:        8080,
		ServiceName: "fulfillment-test",
		SettingsURL: func() string { return settingsPage },
	}, server.Deps{
		Carrier:  carrier,
		Tokens:   tokens,
		States:   oauthstate.NewManager(oauthstate.NewMemoryStore(), 0),
		Shipping: aggregator,
		Catalog:  router,
		Orders:   lifecycle,
		Finance:  financeSvc,
		Metrics:  metrics,
		Gatherer: registry,
	}, logger)

	return &harness{srv: srv, api: api, tokens: tokenRepo, products: productRepo, registry: registry}
}

func (h *harness) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestServer_Health(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	h := newHarness(t, false)
	h.do(t, http.MethodGet, "/health", nil)

	rec := h.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fulfillment_requests_total")
	assert.Contains(t, rec.Body.String(), `operation="GET /health"`)
}

type quoteResponse struct {
	Success bool `json:"success"`
	Options []struct {
		ServiceID     string          `json:"serviceId"`
		ServiceName   string          `json:"serviceName"`
		Price         decimal.Decimal `json:"price"`
		CustomerPrice decimal.Decimal `json:"customerPrice"`
		FreeShipping  bool            `json:"freeShipping"`
	} `json:"options"`
	Error string `json:"error"`
}

func TestServer_QuoteEndToEnd(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/shipping/quote", map[string]any{
		"destinationZip": "01001000",
		"items":          []map[string]any{{"productId": "p1", "quantity": 2}},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp quoteResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Options)
	for _, opt := range resp.Options {
		assert.NotEmpty(t, opt.ServiceID)
		assert.True(t, opt.Price.IsPositive(), "price of %s", opt.ServiceName)
	}
	for i := 1; i < len(resp.Options); i++ {
		assert.False(t, resp.Options[i].Price.LessThan(resp.Options[i-1].Price))
	}
	assert.EqualValues(t, 1, h.api.CalculateCalls.Load())
}

func TestServer_QuoteValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "empty items",
			body: map[string]any{"destinationZip": "01001000", "items": []any{}},
		},
		{
			name: "missing items",
			body: map[string]any{"destinationZip": "01001000"},
		},
		{
			name: "short postal code",
			body: map[string]any{"destinationZip": "0100", "items": []map[string]any{{"productId": "p1", "quantity": 1}}},
		},
		{
			name: "zero quantity",
			body: map[string]any{"destinationZip": "01001000", "items": []map[string]any{{"productId": "p1", "quantity": 0}}},
		},
		{
			name: "missing product id",
			body: map[string]any{"destinationZip": "01001000", "items": []map[string]any{{"quantity": 1}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)

			rec := h.do(t, http.MethodPost, "/shipping/quote", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp quoteResponse
			decode(t, rec, &resp)
			assert.False(t, resp.Success)
			assert.Zero(t, h.api.CalculateCalls.Load())
		})
	}
}

func TestServer_QuoteMalformedJSON(t *testing.T) {
	h := newHarness(t, true)
	req := httptest.NewRequest(http.MethodPost, "/shipping/quote", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.api.CalculateCalls.Load())
}

func TestServer_QuoteNotConnected(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/shipping/quote", map[string]any{
		"destinationZip": "01001000",
		"items":          []map[string]any{{"productId": "p1", "quantity": 1}},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp quoteResponse
	decode(t, rec, &resp)
	assert.Equal(t, "shipping temporarily unavailable", resp.Error)
	assert.Zero(t, h.api.CalculateCalls.Load())
}

func TestServer_QuoteProviderFailure(t *testing.T) {
	h := newHarness(t, true)
	h.api.SimulateErrors = true

	rec := h.do(t, http.MethodPost, "/shipping/quote", map[string]any{
		"destinationZip": "01001000",
		"items":          []map[string]any{{"productId": "p1", "quantity": 1}},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Simulated")
}

func TestServer_Pickups(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodGet, "/shipping/pickups", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/shipping/pickups?cep=01001-000", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var points []shipping.PickupPoint
	decode(t, rec, &points)
	assert.NotNil(t, points)

	rec = h.do(t, http.MethodGet, "/shipping/pickups?zip=123", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TrackPartialFailure(t *testing.T) {
	h := newHarness(t, true)
	h.api.OnTracking = func(_ context.Context, _, code string) (*melhorenvio.TrackingInfo, error) {
		if code == "BAD" {
			return nil, &melhorenvio.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
		}
		return &melhorenvio.TrackingInfo{ID: code, Status: "posted", Tracking: "BR1"}, nil
	}

	rec := h.do(t, http.MethodPost, "/shipping/track", map[string]any{"trackingCodes": []string{"A1", "BAD"}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool                               `json:"success"`
		Results map[string]shipping.TrackingResult `json:"results"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, shipping.ResultOK, resp.Results["A1"].Status)
	require.NotNil(t, resp.Results["A1"].Tracking)
	assert.Equal(t, shipping.ResultError, resp.Results["BAD"].Status)
	assert.NotEmpty(t, resp.Results["BAD"].Error)
}

func TestServer_TrackEmpty(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/shipping/track", map[string]any{"trackingCodes": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/shipping/track", map[string]any{"trackingCodes": []string{" "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.api.TrackingCalls.Load())
}

func TestServer_OAuthFlow(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodGet, "/admin/integrations/carrier/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status melhorenvio.ConnectionStatus
	decode(t, rec, &status)
	assert.False(t, status.Connected)

	rec = h.do(t, http.MethodGet, "/integrations/carrier/authorize", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "42", location.Query().Get("client_id"))

	rec = h.do(t, http.MethodGet, "/integrations/carrier/callback?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, settingsPage, rec.Header().Get("Location"))
	assert.EqualValues(t, 1, h.api.ExchangeCalls.Load())

	rec = h.do(t, http.MethodGet, "/admin/integrations/carrier/status", nil)
	decode(t, rec, &status)
	assert.True(t, status.Connected)
	assert.Equal(t, "sandbox", status.Environment)
	assert.NotNil(t, status.ExpiresAt)

	// A state is good for one callback only.
	rec = h.do(t, http.MethodGet, "/integrations/carrier/callback?code=abc&state="+url.QueryEscape(state), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_OAuthCallbackFailures(t *testing.T) {
	h := newHarness(t, false)

	var body struct {
		Error string `json:"error"`
		State string `json:"state"`
	}

	rec := h.do(t, http.MethodGet, "/integrations/carrier/callback?state=s1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "s1", body.State)
	assert.NotEmpty(t, body.Error)

	rec = h.do(t, http.MethodGet, "/integrations/carrier/callback?code=abc&state=never-issued", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "never-issued", body.State)
	assert.Zero(t, h.api.ExchangeCalls.Load())

	h.api.OnExchangeCode = func(context.Context, string) (*melhorenvio.TokenResponse, error) {
		return nil, &melhorenvio.APIError{StatusCode: http.StatusBadRequest, Message: "invalid_grant"}
	}
	rec = h.do(t, http.MethodGet, "/integrations/carrier/authorize", nil)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	rec = h.do(t, http.MethodGet, "/integrations/carrier/callback?code=abc&state="+url.QueryEscape(state), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "authorization exchange failed", body.Error)
	assert.Equal(t, state, body.State)
}

func TestServer_Products(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodGet, "/products/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one catalog.Result
	decode(t, rec, &one)
	assert.Equal(t, catalog.SourceLocal, one.Source)
	require.NotNil(t, one.Product)
	assert.Equal(t, "Camiseta", one.Product.Name)

	rec = h.do(t, http.MethodGet, "/products?search=cami", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list catalog.ListResult
	decode(t, rec, &list)
	assert.Equal(t, catalog.SourceLocal, list.Source)
	assert.Len(t, list.Products, 1)

	rec = h.do(t, http.MethodGet, "/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func placeBody(productID string) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": 2}},
		"customer": map[string]any{
			"userId": "u1",
			"name":   "Ana",
			"email":  "ana@example.com",
		},
		"shippingAddress": map[string]any{
			"street":     "Praça da Sé",
			"number":     "1",
			"district":   "Sé",
			"city":       "São Paulo",
			"state":      "SP",
			"postalCode": "01001-000",
		},
	}
}

func TestServer_OrderLifecycle(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/orders", placeBody("p1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orders.Order
	decode(t, rec, &placed)
	assert.Equal(t, orders.StatusPending, placed.Status)
	assert.True(t, placed.Total.Equal(decimal.RequireFromString("99.80")))
	require.Len(t, placed.Items, 1)
	assert.Equal(t, "Camiseta", placed.Items[0].Name)

	rec = h.do(t, http.MethodGet, "/orders/"+placed.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/orders/"+placed.ID+"/status", map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed orders.Order
	decode(t, rec, &confirmed)
	assert.Equal(t, orders.StatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.PaidAt)

	rec = h.do(t, http.MethodPost, "/admin/orders/"+placed.ID+"/status", map[string]any{"status": "DELIVERED"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/orders/"+placed.ID+"/status", map[string]any{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/admin/orders/missing/status", map[string]any{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, to := range []string{"PROCESSING", "SHIPPED"} {
		rec = h.do(t, http.MethodPost, "/admin/orders/"+placed.ID+"/status", map[string]any{
			"status":       to,
			"trackingCode": "BR123",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/admin/orders/shipped", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shipped []orders.Order
	decode(t, rec, &shipped)
	require.Len(t, shipped, 1)
	assert.Equal(t, "BR123", shipped[0].TrackingCode)

	rec = h.do(t, http.MethodGet, "/users/u1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []orders.Order
	decode(t, rec, &mine)
	assert.Len(t, mine, 1)

	rec = h.do(t, http.MethodGet, "/admin/orders?status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []orders.Order
	decode(t, rec, &pending)
	assert.Empty(t, pending)

	rec = h.do(t, http.MethodGet, "/admin/orders?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PlaceOrderRejections(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/orders", placeBody("unknown"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := placeBody("p1")
	body["items"] = []any{}
	rec = h.do(t, http.MethodPost, "/orders", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FinancialConfig(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodGet, "/admin/financial-config", nil, "X-Actor-Role", "manager")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	decode(t, rec, &view)
	assert.NotContains(t, view, "costs")

	update := map[string]any{
		"interestRate":          "0.02",
		"maxInstallments":       10,
		"minInstallmentValue":   "30",
		"freeShippingThreshold": "50",
		"markup":                "0.1",
		"costs":                 map[string]any{"paymentFeeRate": "0.03", "packagingCost": "2.5"},
	}

	rec = h.do(t, http.MethodPut, "/admin/financial-config", update, "X-Actor-Role", "manager")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPut, "/admin/financial-config", update, "X-Actor-Role", "owner")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/admin/financial-config", nil, "X-Actor-Role", "owner")
	decode(t, rec, &view)
	assert.Contains(t, view, "costs")
	assert.EqualValues(t, 10, view["maxInstallments"])
}

func TestServer_FreeShippingFromFinancialConfig(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPut, "/admin/financial-config", map[string]any{
		"interestRate":          "0.02",
		"maxInstallments":       6,
		"minInstallmentValue":   "50",
		"freeShippingThreshold": "90",
	}, "X-Actor-Role", "owner")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/shipping/quote", map[string]any{
		"destinationZip": "01001000",
		"items":          []map[string]any{{"productId": "p1", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp quoteResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Options)
	for _, opt := range resp.Options {
		assert.True(t, opt.FreeShipping)
		assert.True(t, opt.CustomerPrice.IsZero())
		assert.True(t, opt.Price.IsPositive())
	}
}

func TestServer_InternalErrorsAreGeneric(t *testing.T) {
	h := newHarness(t, true)
	h.api.OnCalculate = func(context.Context, string, *melhorenvio.CalculateRequest) ([]melhorenvio.ServiceQuote, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	rec := h.do(t, http.MethodPost, "/shipping/quote", map[string]any{
		"destinationZip": "01001000",
		"items":          []map[string]any{{"productId": "p1", "quantity": 1}},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
