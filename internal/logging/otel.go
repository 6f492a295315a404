package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AttachOTEL tees an OpenTelemetry bridge core into logger so every record
// is also exported through the given log provider. A nil provider returns
// the logger unchanged.
func AttachOTEL(logger *zap.Logger, provider log.LoggerProvider) *zap.Logger {
	if provider == nil {
		return logger
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelzap.NewCore("voxd",
			otelzap.WithLoggerProvider(provider),
		))
	}))
}
