package shipping_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/fulfillment/pkg/shipping"
)

func TestError_Error(t *testing.T) {
	err := shipping.NewError("melhorenvio", shipping.CodeUnauthorized, "token rejected")
	assert.Equal(t, "melhorenvio error (UNAUTHORIZED): token rejected", err.Error())
}

func TestError_ErrorWithoutCarrier(t *testing.T) {
	err := shipping.NewError("", shipping.CodeInvalidRequest, "at least one item is required")
	assert.Equal(t, "shipping error (INVALID_REQUEST): at least one item is required", err.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := shipping.NewError("melhorenvio", shipping.CodeProviderUnavailable, "request failed").WithCause(cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := shipping.NewError("melhorenvio", shipping.CodeNotConnected, "no token stored")
	wrapped := fmt.Errorf("quote: %w", err)

	assert.True(t, errors.Is(wrapped, shipping.ErrNotConnected))
	assert.False(t, errors.Is(wrapped, shipping.ErrUnauthorized))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, shipping.CodeUnauthorized, shipping.CodeOf(fmt.Errorf("x: %w", shipping.ErrUnauthorized)))
	assert.Equal(t, "", shipping.CodeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	err := shipping.NewError("melhorenvio", shipping.CodeProviderUnavailable, "503").WithRetryable(true).WithStatusCode(503)
	assert.True(t, shipping.IsRetryable(err))
	assert.Equal(t, 503, err.StatusCode)
	assert.False(t, shipping.IsRetryable(shipping.ErrInvalidRequest))
}
