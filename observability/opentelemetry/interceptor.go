package opentelemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"eproxy/interceptor"
	"eproxy/observability"
	"eproxy/rpc"
)

const instrumentationName = "eproxy/observability/opentelemetry"

type InterceptorBuilder struct {
	port       int
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewInterceptorBuilder falls back to the global tracer provider and
// propagator when tracer or propagator is nil.
func NewInterceptorBuilder(port int, tracer trace.Tracer, propagator propagation.TextMapPropagator) *InterceptorBuilder {
	return &InterceptorBuilder{port: port, tracer: tracer, propagator: propagator}
}

// Build returns an interceptor that wraps the remote call of the invocation in
// a client span and carries the trace context in the request metadata.
func (b *InterceptorBuilder) Build() interceptor.Interceptor {
	address := observability.GetOutboundIP()
	if b.port != 0 {
		address = fmt.Sprintf("%s:%d", address, b.port)
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	propagator := b.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	attrs := []attribute.KeyValue{
		semconv.RPCSystemKey.String("eproxy"),
		attribute.Key("rpc.component").String("client"),
		attribute.Key("client.address").String(address),
	}
	return interceptor.Func(func(ctx context.Context, inv *interceptor.Invocation) error {
		service, method := observability.SplitServiceID(inv.ServiceID)
		ctx, span := tracer.Start(ctx, inv.ServiceID,
			trace.WithAttributes(attrs...),
			trace.WithAttributes(semconv.RPCService(service), semconv.RPCMethod(method)),
			trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		if inv.ServiceKey != "" {
			span.SetAttributes(attribute.Key("rpc.service_key").String(inv.ServiceKey))
		}
		// inject: the trace metadata travels to the server with the request
		carrier := propagation.MapCarrier{}
		propagator.Inject(ctx, carrier)
		ctx = rpc.WithMeta(ctx, carrier)

		if msg := inv.Proceed(ctx); msg == nil {
			span.SetStatus(codes.Error, "no result")
			return nil
		}
		span.SetStatus(codes.Ok, "OK")
		return nil
	})
}
