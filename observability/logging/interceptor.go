package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eproxy/interceptor"
)

// Interceptor logs every remote call with its latency. Absent results are
// logged at warn level, the rest at level.
type Interceptor struct {
	logger *zap.Logger
	level  zapcore.Level
}

func NewInterceptor(logger *zap.Logger, level zapcore.Level) *Interceptor {
	return &Interceptor{logger: logger, level: level}
}

func (i *Interceptor) Intercept(ctx context.Context, inv *interceptor.Invocation) error {
	start := time.Now()
	msg := inv.Proceed(ctx)
	fields := []zap.Field{
		zap.String("service_id", inv.ServiceID),
		zap.Int("parameters", len(inv.Parameters)),
		zap.Duration("latency", time.Since(start)),
	}
	if inv.ServiceKey != "" {
		fields = append(fields, zap.String("service_key", inv.ServiceKey))
	}
	if msg == nil {
		i.logger.Warn("invoke: no result", fields...)
		return nil
	}
	i.logger.Check(i.level, "invoke: done").Write(fields...)
	return nil
}
