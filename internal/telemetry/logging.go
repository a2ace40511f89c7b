package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig describes the service logger.
type LoggerConfig struct {
	Level       string
	ServiceName string
	Version     string
	Environment string
}

// NewLogger creates an OpenTelemetry-aware JSON logger. Every entry carries
// the service name, version and carrier environment. The returned level can
// be changed while the process runs.
func NewLogger(cfg LoggerConfig) (*otelzap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	config := zap.NewProductionConfig()
	config.Level = level
	config.Encoding = "json"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.InitialFields = map[string]any{
		"service":             cfg.ServiceName,
		"version":             cfg.Version,
		"carrier_environment": cfg.Environment,
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, level, err
	}

	return otelzap.New(zapLogger, otelzap.WithMinLevel(zapcore.InfoLevel)), level, nil
}

// ParseLevel maps LOG_LEVEL to a zap level. Unknown values mean info.
func ParseLevel(level string) zapcore.Level {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}
