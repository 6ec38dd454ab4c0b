package rpc

import (
	"context"

	"eproxy/rpc/message"
)

//go:generate mockgen -package=mocks -destination=mocks/proxy.mock.go -source=types.go Proxy

// Proxy is the transport boundary: one framed request in, one framed response out.
type Proxy interface {
	Invoke(ctx context.Context, req *message.Request) (*message.Response, error)
}

type addressKey struct{}

type onewayKey struct{}

// WithAddress pins the call to one instance, used by cluster strategies that
// retarget a call themselves.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, addressKey{}, address)
}

func AddressFrom(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(addressKey{}).(string)
	return address, ok && address != ""
}

// UsingOneway marks the call as one-way, the server does not answer it.
func UsingOneway(ctx context.Context) context.Context {
	return context.WithValue(ctx, onewayKey{}, true)
}

func IsOneway(ctx context.Context) bool {
	val, ok := ctx.Value(onewayKey{}).(bool)
	return ok && val
}

type metaKey struct{}

// WithMeta attaches extra request metadata, merged over what is already there.
func WithMeta(ctx context.Context, meta map[string]string) context.Context {
	merged := make(map[string]string, len(meta))
	for k, v := range MetaFrom(ctx) {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	return context.WithValue(ctx, metaKey{}, merged)
}

func MetaFrom(ctx context.Context) map[string]string {
	meta, _ := ctx.Value(metaKey{}).(map[string]string)
	return meta
}
