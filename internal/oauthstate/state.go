// Package oauthstate issues and consumes one-time OAuth state values for
// the carrier connect flow.
package oauthstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an issued state stays valid.
const DefaultTTL = 10 * time.Minute

// ErrUnknownState is returned when a state was never issued, expired or was
// already consumed.
var ErrUnknownState = errors.New("unknown oauth state")

// Store persists pending states.
type Store interface {
	// Put records state until ttl elapses. It reports false if the state already exists.
	Put(ctx context.Context, state string, ttl time.Duration) (bool, error)
	// Take removes state and reports whether it was present.
	Take(ctx context.Context, state string) (bool, error)
}

// Manager issues random states and consumes them exactly once.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a manager. A non-positive ttl uses DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// Issue returns a fresh state value.
func (m *Manager) Issue(ctx context.Context) (string, error) {
	state := uuid.NewString()
	ok, err := m.store.Put(ctx, state, m.ttl)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("issue oauth state: collision on %s", state)
	}
	return state, nil
}

// Consume validates state and invalidates it.
func (m *Manager) Consume(ctx context.Context, state string) error {
	if state == "" {
		return ErrUnknownState
	}
	ok, err := m.store.Take(ctx, state)
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	if !ok {
		return ErrUnknownState
	}
	return nil
}
