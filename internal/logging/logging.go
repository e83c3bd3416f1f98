package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. env "local" gets the development console
// encoder; anything else logs JSON at info.
func New(service, env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(
		zap.Fields(
			zap.String("service", service),
			zap.String("env", env),
		),
	)
}

// Must is New for main packages; it falls back to a no-op logger.
func Must(service, env string) *zap.Logger {
	l, err := New(service, env)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
