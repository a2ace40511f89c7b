package melhorenvio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// APIClient defines the Melhor Envio API operations the client uses.
// Implementations are the HTTP client and MockAPIClient.
type APIClient interface {
	// ExchangeCode trades an authorization code for a token pair.
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)

	// RefreshToken trades a refresh token for a new token pair.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// Calculate quotes every service able to carry the products.
	Calculate(ctx context.Context, accessToken string, req *CalculateRequest) ([]ServiceQuote, error)

	// Agencies lists pickup agencies near a postal code.
	Agencies(ctx context.Context, accessToken, postalCode string) ([]Agency, error)

	// Tracking returns the status of one order or tracking code.
	Tracking(ctx context.Context, accessToken, code string) (*TrackingInfo, error)
}

// TokenResponse is the body of POST /oauth/token.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// tokenRequest is the body sent to POST /oauth/token.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// CalculateRequest is the body of POST /api/v2/me/shipment/calculate.
type CalculateRequest struct {
	From     PostalCodeRef     `json:"from"`
	To       PostalCodeRef     `json:"to"`
	Products []Product         `json:"products"`
	Options  *CalculateOptions `json:"options,omitempty"`
}

// PostalCodeRef identifies an origin or destination.
type PostalCodeRef struct {
	PostalCode string `json:"postal_code"`
}

// Product is one line of a calculate request.
type Product struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`  // cm
	Height         float64 `json:"height"` // cm
	Length         float64 `json:"length"` // cm
	Weight         float64 `json:"weight"` // kg
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int     `json:"quantity"`
}

// CalculateOptions are optional add-on services.
type CalculateOptions struct {
	Receipt bool `json:"receipt"`
	OwnHand bool `json:"own_hand"`
}

// ServiceQuote is one service in a calculate response. Services the carrier
// cannot offer come back with Error set and no price.
type ServiceQuote struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	CustomPrice   decimal.Decimal `json:"custom_price"`
	Discount      decimal.Decimal `json:"discount"`
	Currency      string          `json:"currency"`
	DeliveryTime  int             `json:"delivery_time"`
	DeliveryRange DeliveryRange   `json:"delivery_range"`
	Company       Company         `json:"company"`
	Error         string          `json:"error,omitempty"`
}

// DeliveryRange is the estimated delivery window in business days.
type DeliveryRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Company is the carrier company behind a service or agency.
type Company struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Agency is an entry of GET /api/v2/me/shipment/agencies.
type Agency struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Email     string        `json:"email,omitempty"`
	Address   AgencyAddress `json:"address"`
	Phone     AgencyPhone   `json:"phone"`
	Companies []Company     `json:"companies"`
}

// AgencyAddress is an agency's location.
type AgencyAddress struct {
	Address    string     `json:"address"`
	Number     string     `json:"number"`
	District   string     `json:"district"`
	PostalCode string     `json:"postal_code"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	City       AgencyCity `json:"city"`
}

// AgencyCity is the city block of an agency address.
type AgencyCity struct {
	City  string      `json:"city"`
	State AgencyState `json:"state"`
}

// AgencyState is the state block of an agency address.
type AgencyState struct {
	StateAbbr string `json:"state_abbr"`
}

// AgencyPhone is an agency contact phone.
type AgencyPhone struct {
	Phone string `json:"phone"`
}

// TrackingInfo is one entry of POST /api/v2/me/shipment/tracking.
// Timestamps use the provider's "2006-01-02 15:04:05" layout.
type TrackingInfo struct {
	ID          string  `json:"id"`
	Protocol    string  `json:"protocol"`
	Status      string  `json:"status"`
	Tracking    string  `json:"tracking"`
	TrackingURL string  `json:"melhorenvio_tracking"`
	CreatedAt   *string `json:"created_at"`
	PaidAt      *string `json:"paid_at"`
	PostedAt    *string `json:"posted_at"`
	DeliveredAt *string `json:"delivered_at"`
	CanceledAt  *string `json:"canceled_at"`
	ExpiredAt   *string `json:"expired_at"`
}

type trackingRequest struct {
	Orders []string `json:"orders"`
}

// APIError represents a non-2xx response from the API.
type APIError struct {
	StatusCode int            `json:"-"`
	Message    string         `json:"message"`
	Errors     map[string]any `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match a 401 response.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Sentinel API errors.
var (
	// ErrUnauthorized is returned for HTTP 401: the token was revoked or expired early.
	ErrUnauthorized = errors.New("melhorenvio: unauthorized")

	// ErrTrackingNotFound is returned when the provider has no entry for a code.
	ErrTrackingNotFound = errors.New("melhorenvio: tracking code not found")
)
