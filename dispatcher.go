package eproxy

import (
	"context"
	"reflect"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"eproxy/breaker"
	"eproxy/command"
	"eproxy/convert"
	"eproxy/interceptor"
	"eproxy/internal/errs"
	"eproxy/recovery"
	"eproxy/rpc/message"
)

// Dispatcher decides how a call is executed and how it recovers when the
// remote call yields no result. It holds no per-call state and is shared by
// concurrent calls.
type Dispatcher struct {
	serviceKey   string
	target       any
	commands     command.Provider
	invoker      breaker.Invoker
	converter    convert.Converter
	interceptors *interceptor.Registry
	invocations  *interceptor.Provider
	recovery     *recovery.Selector
	logger       *zap.Logger
}

// DispatcherWithServiceKey sets the key sent with every call, used by servers
// to tell apart several implementations of one service.
func DispatcherWithServiceKey(key string) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.serviceKey = key
	}
}

// DispatcherWithTarget sets the proxy the invocations are made for.
func DispatcherWithTarget(target any) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.target = target
	}
}

func DispatcherWithConverter(c convert.Converter) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.converter = c
	}
}

func DispatcherWithInterceptors(r *interceptor.Registry) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.interceptors = r
	}
}

func DispatcherWithInvocationProvider(p *interceptor.Provider) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.invocations = p
	}
}

func DispatcherWithLogger(logger *zap.Logger) option.Option[Dispatcher] {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(commands command.Provider, invoker breaker.Invoker,
	selector *recovery.Selector, opts ...option.Option[Dispatcher]) *Dispatcher {
	d := &Dispatcher{
		commands:     commands,
		invoker:      invoker,
		converter:    convert.TypeConverter{},
		interceptors: interceptor.NewRegistry(nil),
		recovery:     selector,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.invocations == nil {
		d.invocations = interceptor.NewProvider(invoker)
	}
	if d.target == nil {
		d.target = d
	}
	return d
}

// Invoke calls serviceID and returns its result as T. T of any asks for the
// raw result and never goes through the cache.
//
// When the command enables the request cache, or generic interceptors are
// registered, the call runs through the interceptors only and Invoke returns
// the zero value of T: what the interceptors leave in the invocation is not
// read back.
func Invoke[T any](ctx context.Context, d *Dispatcher, parameters map[string]any, serviceID string) (T, error) {
	var t T
	typ := reflect.TypeOf(&t).Elem()
	res, err := d.invoke(ctx, parameters, serviceID, typ)
	if err != nil || res == nil {
		return t, err
	}
	t, ok := res.(T)
	if !ok {
		return t, errs.ResultTypeError(res, typ.String())
	}
	return t, nil
}

func (d *Dispatcher) invoke(ctx context.Context, parameters map[string]any,
	serviceID string, typ reflect.Type) (any, error) {
	isRaw := typ == convert.RawType
	hasInterceptors := d.interceptors.HasGenerics()
	cmd, err := d.commands.GetCommand(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var msg *message.ResultMessage
	if (!cmd.RequestCacheEnabled || isRaw) && !hasInterceptors {
		msg = d.invoker.Invoke(ctx, parameters, serviceID, d.serviceKey, isRaw)
		if msg == nil {
			return d.recover(ctx, cmd, &recovery.Call{
				Parameters: parameters,
				ServiceID:  serviceID,
				ServiceKey: d.serviceKey,
				Raw:        isRaw,
				ReturnType: typ,
			})
		}
	}

	var inv *interceptor.Invocation
	if cmd.RequestCacheEnabled && !isRaw {
		inv = d.invocations.GetCacheInvocation(d.target, parameters, serviceID, d.serviceKey, typ)
		if cache := d.interceptors.Cache(); cache != nil {
			if _, err = interceptor.Intercept(ctx, cache, inv); err != nil {
				return nil, err
			}
		} else {
			d.logger.Debug("eproxy: request cache enabled without a cache interceptor",
				zap.String("service_id", serviceID))
		}
	}
	if hasInterceptors {
		if inv == nil {
			inv = d.invocations.GetInvocation(d.target, parameters, serviceID, d.serviceKey, typ)
		}
		for _, i := range d.interceptors.Generics() {
			if _, err = interceptor.Intercept(ctx, i, inv); err != nil {
				return nil, err
			}
		}
	}

	if msg == nil {
		return nil, nil
	}
	return d.converter.Convert(msg.Result, typ)
}

// CallInvoke always makes the remote call directly and converts the result
// to typ. It never uses the cache or the interceptors.
func (d *Dispatcher) CallInvoke(ctx context.Context, parameters map[string]any,
	serviceID string, typ reflect.Type) (any, error) {
	cmd, err := d.commands.GetCommand(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	msg := d.invoker.Invoke(ctx, parameters, serviceID, d.serviceKey, true)
	if msg == nil {
		return d.recover(ctx, cmd, &recovery.Call{
			Parameters: parameters,
			ServiceID:  serviceID,
			ServiceKey: d.serviceKey,
			Raw:        true,
			ReturnType: typ,
		})
	}
	return d.converter.Convert(msg.Result, typ)
}

// InvokeVoid is the call without a result. The remote call starts before the
// generic interceptors run and is awaited after them. A missing result is
// recovered and what the recovery returns is dropped.
//
// The interceptors get an invocation of their own, so an interceptor that
// calls Proceed (logging, metrics and tracing all do) sends the request a
// second time. Register no generic interceptors for calls that must not be
// repeated.
func (d *Dispatcher) InvokeVoid(ctx context.Context, parameters map[string]any, serviceID string) error {
	cmd, err := d.commands.GetCommand(ctx, serviceID)
	if err != nil {
		return err
	}
	done := make(chan *message.ResultMessage, 1)
	go func() {
		done <- d.invoker.Invoke(ctx, parameters, serviceID, d.serviceKey, true)
	}()

	var interceptErr error
	if d.interceptors.HasGenerics() {
		inv := d.invocations.GetInvocation(d.target, parameters, serviceID, d.serviceKey, nil)
		for _, i := range d.interceptors.Generics() {
			if _, interceptErr = interceptor.Intercept(ctx, i, inv); interceptErr != nil {
				break
			}
		}
	}

	var msg *message.ResultMessage
	select {
	case msg = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if interceptErr != nil {
		return interceptErr
	}
	if msg == nil {
		_, err = d.recover(ctx, cmd, &recovery.Call{
			Parameters: parameters,
			ServiceID:  serviceID,
			ServiceKey: d.serviceKey,
			Raw:        true,
		})
		return err
	}
	return nil
}

func (d *Dispatcher) recover(ctx context.Context, cmd *command.ServiceCommand, call *recovery.Call) (any, error) {
	d.logger.Warn("eproxy: no result, recovering",
		zap.String("service_id", call.ServiceID),
		zap.Stringer("strategy", cmd.Strategy),
		zap.String("fallback", cmd.FallBackName))
	return d.recovery.Recover(ctx, cmd, call)
}
