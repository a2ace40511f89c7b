package melhorenvio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockAPIClient is a mock implementation of APIClient for testing and local runs.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnExchangeCode func(ctx context.Context, code string) (*TokenResponse, error)
	OnRefreshToken func(ctx context.Context, refreshToken string) (*TokenResponse, error)
	OnCalculate    func(ctx context.Context, accessToken string, req *CalculateRequest) ([]ServiceQuote, error)
	OnAgencies     func(ctx context.Context, accessToken, postalCode string) ([]Agency, error)
	OnTracking     func(ctx context.Context, accessToken, code string) (*TrackingInfo, error)

	ExchangeCalls  atomic.Int64
	RefreshCalls   atomic.Int64
	CalculateCalls atomic.Int64
	AgenciesCalls  atomic.Int64
	TrackingCalls  atomic.Int64
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate(ctx context.Context) error {
	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.SimulateErrors {
		return &APIError{StatusCode: 500, Message: "Simulated API error"}
	}
	return nil
}

// ExchangeCode returns a fresh mock token pair.
func (m *MockAPIClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	m.ExchangeCalls.Add(1)
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnExchangeCode != nil {
		return m.OnExchangeCode(ctx, code)
	}
	return mockToken(), nil
}

// RefreshToken returns a rotated mock token pair.
func (m *MockAPIClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	m.RefreshCalls.Add(1)
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnRefreshToken != nil {
		return m.OnRefreshToken(ctx, refreshToken)
	}
	return mockToken(), nil
}

func mockToken() *TokenResponse {
	return &TokenResponse{
		TokenType:    "Bearer",
		ExpiresIn:    int64((30 * 24 * time.Hour).Seconds()),
		AccessToken:  "me-access-" + uuid.New().String()[:8],
		RefreshToken: "me-refresh-" + uuid.New().String()[:8],
		Scope:        "shipping-calculate shipping-tracking",
	}
}

// Calculate returns two Correios services and one service that cannot carry the cart.
func (m *MockAPIClient) Calculate(ctx context.Context, accessToken string, req *CalculateRequest) ([]ServiceQuote, error) {
	m.CalculateCalls.Add(1)
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCalculate != nil {
		return m.OnCalculate(ctx, accessToken, req)
	}

	var weight float64
	for _, p := range req.Products {
		weight += p.Weight * float64(p.Quantity)
	}
	// Rough weight-based pricing keeps multi-item carts distinguishable.
	extra := decimal.NewFromFloat(weight).Mul(decimal.NewFromInt(4)).Round(2)

	correios := Company{ID: 1, Name: "Correios", Picture: "https://sandbox.melhorenvio.com.br/images/shipping-companies/correios.png"}
	pac := decimal.RequireFromString("18.90").Add(extra)
	sedex := decimal.RequireFromString("31.20").Add(extra)

	return []ServiceQuote{
		{
			ID:            1,
			Name:          "PAC",
			Price:         pac,
			CustomPrice:   pac,
			Currency:      "R$",
			DeliveryTime:  6,
			DeliveryRange: DeliveryRange{Min: 5, Max: 6},
			Company:       correios,
		},
		{
			ID:            2,
			Name:          "SEDEX",
			Price:         sedex,
			CustomPrice:   sedex,
			Currency:      "R$",
			DeliveryTime:  2,
			DeliveryRange: DeliveryRange{Min: 1, Max: 2},
			Company:       correios,
		},
		{
			ID:      3,
			Name:    ".Package",
			Company: Company{ID: 2, Name: "Jadlog"},
			Error:   "Transportadora não atende este trecho.",
		},
	}, nil
}

// Agencies returns one agency at the requested postal code.
func (m *MockAPIClient) Agencies(ctx context.Context, accessToken, postalCode string) ([]Agency, error) {
	m.AgenciesCalls.Add(1)
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnAgencies != nil {
		return m.OnAgencies(ctx, accessToken, postalCode)
	}
	return []Agency{
		{
			ID:     1001,
			Name:   "AGF Centro",
			Status: "available",
			Address: AgencyAddress{
				Address:    "Rua Líbero Badaró",
				Number:     "425",
				District:   "Centro",
				PostalCode: postalCode,
				Latitude:   -23.5475,
				Longitude:  -46.6361,
				City:       AgencyCity{City: "São Paulo", State: AgencyState{StateAbbr: "SP"}},
			},
			Phone:     AgencyPhone{Phone: "1133334444"},
			Companies: []Company{{ID: 1, Name: "Correios"}},
		},
	}, nil
}

// Tracking reports every code as posted.
func (m *MockAPIClient) Tracking(ctx context.Context, accessToken, code string) (*TrackingInfo, error) {
	m.TrackingCalls.Add(1)
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnTracking != nil {
		return m.OnTracking(ctx, accessToken, code)
	}
	posted := time.Now().Add(-24 * time.Hour).Format(timeLayout)
	return &TrackingInfo{
		ID:          code,
		Protocol:    "ORD-" + code,
		Status:      "posted",
		Tracking:    fmt.Sprintf("BR%09dBR", time.Now().UnixNano()%1000000000),
		TrackingURL: "https://rastreio.melhorenvio.com.br/" + code,
		PostedAt:    &posted,
	}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
