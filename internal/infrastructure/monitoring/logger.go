package monitoring

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

type zapLogger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds the production logger from the log section of the config.
func NewZapLogger(cfg *config.LogConfig) (logger.Logger, error) {
	return newZapLogger(cfg, zapcore.AddSync(os.Stdout))
}

func newZapLogger(cfg *config.LogConfig, sink zapcore.WriteSyncer) (*zapLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, sink, level)

	return &zapLogger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)),
		level:  level,
	}, nil
}

// SetLevel changes the level of a logger built by NewZapLogger. Unknown loggers and
// unparsable levels are ignored.
func SetLevel(l logger.Logger, level string) {
	zl, ok := l.(*zapLogger)
	if !ok {
		return
	}
	_ = zl.level.UnmarshalText([]byte(level))
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...logger.Fields) {
	l.Logger.Debug(msg, l.convertFields(ctx, fields...)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...logger.Fields) {
	l.Logger.Info(msg, l.convertFields(ctx, fields...)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...logger.Fields) {
	l.Logger.Warn(msg, l.convertFields(ctx, fields...)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Fields) {
	allFields := append(fields, logger.Err(err))
	l.Logger.Error(msg, l.convertFields(ctx, allFields...)...)
}

func (l *zapLogger) Fatal(ctx context.Context, msg string, err error, fields ...logger.Fields) {
	allFields := append(fields, logger.Err(err))
	l.Logger.Fatal(msg, l.convertFields(ctx, allFields...)...)
}

func (l *zapLogger) WithFields(fields logger.Fields) logger.Logger {
	return &zapLogger{Logger: l.Logger.With(l.convertFields(context.Background(), fields)...), level: l.level}
}

func (l *zapLogger) ForContext(ctx context.Context) logger.Logger {
	if ctxLogger, ok := ctx.Value(constants.ContextKeyLogger).(logger.Logger); ok {
		return ctxLogger
	}
	return l
}

func (l *zapLogger) convertFields(ctx context.Context, fields ...logger.Fields) []zap.Field {
	zapFields := make([]zap.Field, 0)
	if ctx != nil {
		if traceID, ok := ctx.Value(constants.ContextKeyTraceID).(string); ok {
			zapFields = append(zapFields, zap.String("trace_id", traceID))
		}
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}

	for _, f := range fields {
		for k, v := range f {
			zapFields = append(zapFields, zap.Any(k, logger.Sanitize(k, v)))
		}
	}
	return zapFields
}
