package interceptor

import (
	"context"

	"eproxy/rpc/message"
)

// Intercept runs one interceptor against the invocation and hands back the
// remote result it left in ReturnValue, if any. It neither retries nor
// translates errors.
func Intercept(ctx context.Context, interceptor Interceptor, invocation *Invocation) (*message.ResultMessage, error) {
	if err := interceptor.Intercept(ctx, invocation); err != nil {
		return nil, err
	}
	msg, _ := invocation.ResultMessage()
	return msg, nil
}
