package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"go.uber.org/zap/zapcore"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.RecordRequest("POST /shipping/quote", "200", 0.05)
	m.RecordRequest("POST /shipping/quote", "200", 0.07)
	m.RecordCarrierError("quote", "unauthorized")
	m.RecordTokenRefresh("success")
	m.RecordTransition("SHIPPED")
	m.RecordWebhook("failed")
	m.RecordExpired(3)
	m.RecordExpired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST /shipping/quote", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CarrierErrors.WithLabelValues("quote", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderTransitions.WithLabelValues("SHIPPED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrdersExpired))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "fulfillment_request_duration_seconds")
}

func TestNewLogger_LevelIsAdjustable(t *testing.T) {
	logger, level, err := telemetry.NewLogger(telemetry.LoggerConfig{
		Level:       "warn",
		ServiceName: "fulfillment",
		Version:     "test",
		Environment: "sandbox",
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.False(t, level.Enabled(zapcore.InfoLevel))

	level.SetLevel(telemetry.ParseLevel("DEBUG"))
	assert.True(t, level.Enabled(zapcore.DebugLevel))
	_ = logger.Sync()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, telemetry.ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, telemetry.ParseLevel("ERROR"))
	assert.Equal(t, zapcore.InfoLevel, telemetry.ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, telemetry.ParseLevel(""))
}
