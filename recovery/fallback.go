package recovery

import (
	"context"

	"eproxy/convert"
)

// StaticFallback answers every call with the same value, converted to the
// return type of the call unless the call is raw.
type StaticFallback struct {
	Value     any
	Converter convert.Converter
}

func (s StaticFallback) Invoke(ctx context.Context, call *Call) (any, error) {
	if call.Raw || call.ReturnType == nil {
		return s.Value, nil
	}
	c := s.Converter
	if c == nil {
		c = convert.TypeConverter{}
	}
	return c.Convert(s.Value, call.ReturnType)
}

// FallbackFunc adapts a function taking only the parameters.
func FallbackFunc(fn func(ctx context.Context, parameters map[string]any) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, call *Call) (any, error) {
		return fn(ctx, call.Parameters)
	})
}
