package ratelimit

import (
	"context"

	"eproxy/interceptor"
	"eproxy/internal/errs"
)

// Limiter decides whether a call under key must be rejected.
type Limiter interface {
	Limit(ctx context.Context, key string) (bool, error)
}

// RejectStrategy runs instead of the call when it is limited.
type RejectStrategy func(ctx context.Context, inv *interceptor.Invocation) error

// DefaultRejection fails the call.
var DefaultRejection RejectStrategy = func(ctx context.Context, inv *interceptor.Invocation) error {
	return errs.RateLimited(inv.ServiceID)
}

// DropRejection skips the remote call, the invocation ends without a result.
var DropRejection RejectStrategy = func(ctx context.Context, inv *interceptor.Invocation) error {
	return nil
}
