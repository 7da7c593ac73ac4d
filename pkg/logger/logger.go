package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datavault-ai/entity-backend/config"
)

var once sync.Once
var core zapcore.Core

// GetZapLogger returns the process logger. Entries logged with a recording
// span in ctx are mirrored as events on that span.
func GetZapLogger(ctx context.Context) (*zap.Logger, error) {
	once.Do(func() {
		level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
		encoderConfig := zap.NewProductionEncoderConfig()
		if config.Config.Server.Debug {
			level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			encoderConfig = zap.NewDevelopmentEncoderConfig()
		}
		core = zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		)
	})

	logger := zap.New(core).WithOptions(
		zap.Hooks(func(entry zapcore.Entry) error {
			span := trace.SpanFromContext(ctx)
			if !span.IsRecording() {
				return nil
			}

			span.AddEvent("log", trace.WithAttributes(
				attribute.String("log.severity", entry.Level.String()),
				attribute.String("log.message", entry.Message),
			))
			if entry.Level >= zap.ErrorLevel {
				span.SetStatus(codes.Error, entry.Message)
			}

			return nil
		}))

	return logger, nil
}
