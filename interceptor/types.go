package interceptor

import (
	"context"
	"reflect"
	"sync"

	"eproxy/breaker"
	"eproxy/rpc/message"
)

// Interceptor is a cross-cutting behaviour run against one call. It may call
// Proceed to perform the remote call and may write Invocation.ReturnValue.
type Interceptor interface {
	Intercept(ctx context.Context, invocation *Invocation) error
}

type Func func(ctx context.Context, invocation *Invocation) error

func (f Func) Intercept(ctx context.Context, invocation *Invocation) error {
	return f(ctx, invocation)
}

// Invocation is the context of a single call. It belongs to that call only
// and is dropped once the chain has run.
type Invocation struct {
	// Target is the proxy the call is made for, identity only
	Target     any
	Parameters map[string]any
	ServiceID  string
	ServiceKey string
	ReturnType reflect.Type
	// ReturnValue is the single result slot, interceptors run one after the
	// other so a later one may overwrite what an earlier one wrote
	ReturnValue any
	// CacheKey is only set on invocations built for the cache interceptor
	CacheKey string

	invoker breaker.Invoker
	once    sync.Once
	result  *message.ResultMessage
}

// Proceed performs the breaker-protected remote call and stores a present
// result into ReturnValue. The remote call happens at most once per
// invocation, later calls return the first outcome.
func (i *Invocation) Proceed(ctx context.Context) *message.ResultMessage {
	i.once.Do(func() {
		if i.invoker == nil {
			return
		}
		i.result = i.invoker.Invoke(ctx, i.Parameters, i.ServiceID, i.ServiceKey, false)
	})
	if i.result != nil {
		i.ReturnValue = i.result
	}
	return i.result
}

// ResultMessage returns ReturnValue when it holds a remote result.
func (i *Invocation) ResultMessage() (*message.ResultMessage, bool) {
	msg, ok := i.ReturnValue.(*message.ResultMessage)
	return msg, ok && msg != nil
}
