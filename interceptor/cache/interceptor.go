package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"eproxy/interceptor"
	"eproxy/rpc/message"
)

var _ interceptor.Interceptor = (*Interceptor)(nil)

// Interceptor is cache-aside: a hit fills ReturnValue from the store, a miss
// proceeds with the remote call and stores what came back. Concurrent misses
// of one key share a single remote call.
type Interceptor struct {
	store      Store
	expiration time.Duration
	group      singleflight.Group
	logger     *zap.Logger
}

func InterceptorWithExpiration(expiration time.Duration) option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.expiration = expiration
	}
}

func InterceptorWithLogger(logger *zap.Logger) option.Option[Interceptor] {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

func NewInterceptor(store Store, opts ...option.Option[Interceptor]) *Interceptor {
	i := &Interceptor{
		store:      store,
		expiration: time.Minute,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Intercept(ctx context.Context, inv *interceptor.Invocation) error {
	key := inv.CacheKey
	if key == "" {
		key = interceptor.CacheKey(inv.ServiceID, inv.ServiceKey, inv.Parameters)
	}
	data, ok, err := i.store.Get(ctx, key)
	if err != nil {
		// a broken cache must not break the call
		i.logger.Warn("cache: get failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		inv.ReturnValue = &message.ResultMessage{Result: json.RawMessage(data)}
		return nil
	}
	val, _, _ := i.group.Do(key, func() (interface{}, error) {
		msg := inv.Proceed(ctx)
		if msg == nil {
			return nil, nil
		}
		bs, er := encode(msg.Result)
		if er != nil {
			i.logger.Warn("cache: result not cacheable", zap.String("key", key), zap.Error(er))
			return msg, nil
		}
		if er = i.store.Set(ctx, key, bs, i.expiration); er != nil {
			i.logger.Warn("cache: set failed", zap.String("key", key), zap.Error(er))
		}
		return msg, nil
	})
	if msg, ok := val.(*message.ResultMessage); ok && msg != nil {
		inv.ReturnValue = msg
	}
	return nil
}

// encode stores results as JSON whatever serializer brought them in, so a hit
// can be converted without knowing it.
func encode(result any) ([]byte, error) {
	if p, ok := result.(message.Payload); ok {
		var v any
		if err := p.Decode(&v); err != nil {
			return nil, err
		}
		result = v
	}
	return json.Marshal(result)
}
