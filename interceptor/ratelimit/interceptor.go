package ratelimit

import (
	"context"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"eproxy/interceptor"
)

var _ interceptor.Interceptor = (*Interceptor)(nil)

// Interceptor guards the remote call with a limiter. Register it before any
// interceptor that proceeds, a call already made cannot be limited.
type Interceptor struct {
	limiter  Limiter
	onReject RejectStrategy
	// services limits only these service ids when not empty
	services map[string]struct{}
	keyFunc  func(inv *interceptor.Invocation) string
	// failOpen lets calls through when the limiter itself fails
	failOpen bool
	logger   *zap.Logger
}

func InterceptorWithReject(onReject RejectStrategy) option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.onReject = onReject
	}
}

// InterceptorWithServices limits only the given service ids.
func InterceptorWithServices(serviceIDs ...string) option.Option[Interceptor] {
	return func(i *Interceptor) {
		for _, id := range serviceIDs {
			i.services[id] = struct{}{}
		}
	}
}

// InterceptorWithKey changes what is limited together, the service id by
// default.
func InterceptorWithKey(keyFunc func(inv *interceptor.Invocation) string) option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.keyFunc = keyFunc
	}
}

func InterceptorWithFailOpen() option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.failOpen = true
	}
}

func InterceptorWithLogger(logger *zap.Logger) option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

func NewInterceptor(limiter Limiter, opts ...option.Option[Interceptor]) *Interceptor {
	i := &Interceptor{
		limiter:  limiter,
		onReject: DefaultRejection,
		services: make(map[string]struct{}, 4),
		keyFunc: func(inv *interceptor.Invocation) string {
			return inv.ServiceID
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Intercept(ctx context.Context, inv *interceptor.Invocation) error {
	if len(i.services) > 0 {
		if _, ok := i.services[inv.ServiceID]; !ok {
			return nil
		}
	}
	limited, err := i.limiter.Limit(ctx, i.keyFunc(inv))
	if err != nil {
		// nobody knows whether the call should be limited, so it is a choice
		i.logger.Warn("ratelimit: limiter failed",
			zap.String("service_id", inv.ServiceID), zap.Error(err))
		if i.failOpen {
			return nil
		}
		return err
	}
	if limited {
		i.logger.Debug("ratelimit: rejected", zap.String("service_id", inv.ServiceID))
		return i.onReject(ctx, inv)
	}
	return nil
}
