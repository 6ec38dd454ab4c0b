package breaker

import (
	"context"

	"eproxy/rpc/message"
)

//go:generate mockgen -package=mocks -destination=mocks/invoker.mock.go -source=types.go Invoker

// Invoker performs a remote call guarded by a circuit breaker. It never fails
// the call: an open circuit, a remote error or a timeout all come back as a
// nil message.
type Invoker interface {
	Invoke(ctx context.Context, parameters map[string]any, serviceID, serviceKey string, decodeRaw bool) *message.ResultMessage
}
