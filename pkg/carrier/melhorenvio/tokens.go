package melhorenvio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Token is the OAuth token pair for one provider environment.
type Token struct {
	Environment  string    `json:"environment"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// usable reports whether the token can be sent at now with margin to spare.
func (t *Token) usable(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// ErrTokenNotFound is returned by a TokenRepository with no row for the environment.
var ErrTokenNotFound = errors.New("carrier token not found")

// TokenRepository persists one token per environment. SaveToken must
// replace the row in a single statement.
type TokenRepository interface {
	GetToken(ctx context.Context, environment string) (*Token, error)
	SaveToken(ctx context.Context, token *Token) error
}

// AuthErrorKind classifies token failures.
type AuthErrorKind string

const (
	AuthNotConnected  AuthErrorKind = "NOT_CONNECTED"
	AuthRefreshFailed AuthErrorKind = "REFRESH_FAILED"
)

// AuthError is returned when no usable token can be produced.
type AuthError struct {
	Kind  AuthErrorKind
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("carrier auth (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("carrier auth (%s)", e.Kind)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is matches any *AuthError with the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotConnected  = &AuthError{Kind: AuthNotConnected}
	ErrRefreshFailed = &AuthError{Kind: AuthRefreshFailed}
)

// TokenSettings are read from configuration on every call.
type TokenSettings struct {
	Environment    string
	SafetyMargin   time.Duration
	RefreshTimeout time.Duration
}

// RefreshObserver records refresh outcomes.
type RefreshObserver interface {
	RecordTokenRefresh(result string)
}

// ConnectionStatus is the admin view of the integration.
type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	Environment string     `json:"environment"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Scope       string     `json:"scope"`
}

// TokenStore hands out valid access tokens and serializes refreshes.
//
// Concurrent callers that find an expired token share one refresh
// exchange. The provider rotates refresh tokens on use, so two racing
// exchanges would leave one caller holding a revoked token.
type TokenStore struct {
	repo     TokenRepository
	api      APIClient
	settings func() TokenSettings
	observer RefreshObserver
	logger   *otelzap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	cached map[string]Token
	flight singleflight.Group
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithRefreshObserver records refresh outcomes on o.
func WithRefreshObserver(o RefreshObserver) TokenStoreOption {
	return func(s *TokenStore) { s.observer = o }
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// NewTokenStore creates a token store.
func NewTokenStore(repo TokenRepository, api APIClient, settings func() TokenSettings, logger *otelzap.Logger, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		repo:     repo,
		api:      api,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		cached:   make(map[string]Token),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Valid returns a token that stays usable for at least the safety margin,
// refreshing it first when needed.
func (s *TokenStore) Valid(ctx context.Context) (*Token, error) {
	settings := s.settings()

	tok, err := s.load(ctx, settings.Environment)
	if err != nil {
		return nil, err
	}
	if tok.usable(s.now(), settings.SafetyMargin) {
		return tok, nil
	}

	ch := s.flight.DoChan(settings.Environment, func() (any, error) {
		return s.refresh(ctx, settings)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(Token)
		return &shared, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh runs once per environment at a time. It is detached from the
// triggering caller so that caller cancelling does not fail the others.
func (s *TokenStore) refresh(ctx context.Context, settings TokenSettings) (Token, error) {
	timeout := settings.RefreshTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	// Another replica may have refreshed since this process last looked.
	current, err := s.repo.GetToken(fctx, settings.Environment)
	if errors.Is(err, ErrTokenNotFound) {
		s.forget(settings.Environment)
		return Token{}, ErrNotConnected
	}
	if err != nil {
		return Token{}, fmt.Errorf("loading carrier token: %w", err)
	}
	if current.usable(s.now(), settings.SafetyMargin) {
		s.remember(*current)
		return *current, nil
	}
	if current.RefreshToken == "" {
		return Token{}, &AuthError{Kind: AuthRefreshFailed, Cause: errors.New("no refresh token on record")}
	}

	s.logger.Ctx(ctx).Info("Refreshing carrier token",
		zap.String("environment", settings.Environment),
		zap.Time("expires_at", current.ExpiresAt),
	)

	resp, err := s.api.RefreshToken(fctx, current.RefreshToken)
	if err != nil {
		s.record("failed")
		s.logger.Ctx(ctx).Error("Carrier token refresh failed",
			zap.String("environment", settings.Environment),
			zap.Error(err),
		)
		return Token{}, &AuthError{Kind: AuthRefreshFailed, Cause: err}
	}

	next := tokenFromResponse(settings.Environment, resp, s.now())
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = current.Scope
	}

	if err := s.persist(fctx, next); err != nil {
		s.record("failed")
		return Token{}, err
	}
	s.record("success")
	return next, nil
}

// Save overwrites the token for its environment.
func (s *TokenStore) Save(ctx context.Context, token *Token) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("saving carrier token: access token is required")
	}
	t := *token
	if t.Environment == "" {
		t.Environment = s.settings().Environment
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	return s.persist(ctx, t)
}

// SaveResponse stores a token response from an OAuth grant.
func (s *TokenStore) SaveResponse(ctx context.Context, resp *TokenResponse) (*Token, error) {
	t := tokenFromResponse(s.settings().Environment, resp, s.now())
	if err := s.persist(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// IsConnected reports whether a valid token can currently be produced.
func (s *TokenStore) IsConnected(ctx context.Context) bool {
	_, err := s.Valid(ctx)
	return err == nil
}

// Status describes the connection for the admin status endpoint.
func (s *TokenStore) Status(ctx context.Context) ConnectionStatus {
	env := s.settings().Environment
	status := ConnectionStatus{Environment: env}

	tok, err := s.Valid(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotConnected) {
			s.logger.Ctx(ctx).Warn("Carrier connection check failed", zap.Error(err))
		}
		return status
	}

	expiresAt := tok.ExpiresAt
	status.Connected = true
	status.ExpiresAt = &expiresAt
	status.Scope = tok.Scope
	return status
}

// Invalidate drops the cached token for the current environment. The next
// Valid call re-reads the repository, which may hold a token saved by
// another replica.
func (s *TokenStore) Invalidate() {
	s.forget(s.settings().Environment)
}

func (s *TokenStore) persist(ctx context.Context, t Token) error {
	if err := s.repo.SaveToken(ctx, &t); err != nil {
		return fmt.Errorf("saving carrier token: %w", err)
	}
	s.remember(t)
	return nil
}

func (s *TokenStore) load(ctx context.Context, environment string) (*Token, error) {
	s.mu.RLock()
	t, ok := s.cached[environment]
	s.mu.RUnlock()
	if ok {
		return &t, nil
	}

	stored, err := s.repo.GetToken(ctx, environment)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading carrier token: %w", err)
	}
	s.remember(*stored)
	cp := *stored
	return &cp, nil
}

func (s *TokenStore) remember(t Token) {
	s.mu.Lock()
	s.cached[t.Environment] = t
	s.mu.Unlock()
}

func (s *TokenStore) forget(environment string) {
	s.mu.Lock()
	delete(s.cached, environment)
	s.mu.Unlock()
}

func (s *TokenStore) record(result string) {
	if s.observer != nil {
		s.observer.RecordTokenRefresh(result)
	}
}

func tokenFromResponse(environment string, resp *TokenResponse, now time.Time) Token {
	return Token{
		Environment:  environment,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		UpdatedAt:    now,
	}
}
