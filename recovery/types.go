package recovery

import (
	"context"
	"reflect"
)

// Call is what a recovery handler gets to work with, the original call as the
// dispatcher saw it.
type Call struct {
	Parameters map[string]any
	ServiceID  string
	ServiceKey string
	// Raw asks for the result as it came off the wire
	Raw bool
	// ReturnType is the type the caller converts the result to, nil when Raw
	ReturnType reflect.Type
}

// Handler obtains a result for a call whose remote invocation yielded none.
// Fallback handlers and cluster strategies both implement it.
type Handler interface {
	Invoke(ctx context.Context, call *Call) (any, error)
}

type HandlerFunc func(ctx context.Context, call *Call) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, call *Call) (any, error) {
	return f(ctx, call)
}
