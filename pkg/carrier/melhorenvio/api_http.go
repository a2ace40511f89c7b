package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSize = 5 * 1024 * 1024

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// Connection settings are read on every request so credential and
// environment changes apply without rebuilding the client.
type HTTPAPIClient struct {
	settings   func() Settings
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	Settings func() Settings
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPAPIClient{
		settings: cfg.Settings,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ExchangeCode runs the authorization_code grant.
// POST /oauth/token
func (c *HTTPAPIClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	s := c.settings()
	return c.token(ctx, s, &tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURI:  s.RedirectURI,
		Code:         code,
	})
}

// RefreshToken runs the refresh_token grant.
// POST /oauth/token
func (c *HTTPAPIClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	s := c.settings()
	return c.token(ctx, s, &tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RefreshToken: refreshToken,
	})
}

func (c *HTTPAPIClient) token(ctx context.Context, s Settings, body *tokenRequest) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, s, http.MethodPost, "/oauth/token", "", nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "token response without access_token"}
	}
	return &result, nil
}

// Calculate quotes shipping services.
// POST /api/v2/me/shipment/calculate
func (c *HTTPAPIClient) Calculate(ctx context.Context, accessToken string, req *CalculateRequest) ([]ServiceQuote, error) {
	resp, err := c.doRequest(ctx, c.settings(), http.MethodPost, "/api/v2/me/shipment/calculate", accessToken, nil, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result []ServiceQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode calculate response: %w", err)
	}
	return result, nil
}

// Agencies lists pickup agencies.
// GET /api/v2/me/shipment/agencies?postal_code={postalCode}
func (c *HTTPAPIClient) Agencies(ctx context.Context, accessToken, postalCode string) ([]Agency, error) {
	query := url.Values{"postal_code": []string{postalCode}}

	resp, err := c.doRequest(ctx, c.settings(), http.MethodGet, "/api/v2/me/shipment/agencies", accessToken, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result []Agency
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode agencies response: %w", err)
	}
	return result, nil
}

// Tracking returns the status of one code.
// POST /api/v2/me/shipment/tracking answers with an object keyed by code.
func (c *HTTPAPIClient) Tracking(ctx context.Context, accessToken, code string) (*TrackingInfo, error) {
	resp, err := c.doRequest(ctx, c.settings(), http.MethodPost, "/api/v2/me/shipment/tracking", accessToken, nil, &trackingRequest{Orders: []string{code}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result map[string]TrackingInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tracking response: %w", err)
	}

	info, ok := result[code]
	if !ok {
		return nil, ErrTrackingNotFound
	}
	return &info, nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, s Settings, method, path, accessToken string, query url.Values, body any) (*http.Response, error) {
	endpoint := strings.TrimRight(s.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// The provider rejects requests without an identifying User-Agent.
	req.Header.Set("User-Agent", s.UserAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	var payload struct {
		Message          string         `json:"message"`
		Error            string         `json:"error"`
		ErrorDescription string         `json:"error_description"`
		Errors           map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := payload.Message
		if msg == "" {
			msg = payload.ErrorDescription
		}
		if msg == "" {
			msg = payload.Error
		}
		if msg != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: msg, Errors: payload.Errors}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
