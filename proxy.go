package eproxy

import (
	"context"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"eproxy/internal/errs"
)

// Service may name the service of a proxy, the struct type name is used
// otherwise.
type Service interface {
	ServiceName() string
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// InitServiceProxy fills every func field of srv with a stub calling d. A field
// must look like
//
//	func(ctx context.Context, req R) (T, error)
//	func(ctx context.Context, req R) error
//
// R is a struct, a pointer to one or a map[string]any, its fields become the
// call parameters. The service id is the service_id tag of the field, or
// "<ServiceName>.<FieldName>" without one. Fields of other shapes are skipped.
func InitServiceProxy(d *Dispatcher, srv any) error {
	val := reflect.ValueOf(srv)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return errs.ServiceTypError
	}
	valElem := val.Elem()
	typElem := valElem.Type()
	serviceName := typElem.Name()
	if s, ok := srv.(Service); ok {
		serviceName = s.ServiceName()
	}
	numField := typElem.NumField()
	for i := 0; i < numField; i++ {
		fieldTyp := typElem.Field(i)
		fieldVal := valElem.Field(i)
		if !fieldVal.CanSet() || !isStub(fieldTyp.Type) {
			continue
		}
		serviceID := fieldTyp.Tag.Get("service_id")
		if serviceID == "" {
			serviceID = serviceName + "." + fieldTyp.Name
		}
		fieldVal.Set(reflect.MakeFunc(fieldTyp.Type, stub(d, serviceID, fieldTyp.Type)))
	}
	return nil
}

func isStub(typ reflect.Type) bool {
	if typ.Kind() != reflect.Func || typ.NumIn() != 2 || !typ.In(0).Implements(contextType) {
		return false
	}
	switch typ.NumOut() {
	case 1:
		return typ.Out(0) == errorType
	case 2:
		return typ.Out(1) == errorType
	default:
		return false
	}
}

func stub(d *Dispatcher, serviceID string, typ reflect.Type) func(args []reflect.Value) []reflect.Value {
	// a closure cannot return an untyped nil, the zero error has to be typed
	nilErr := reflect.Zero(errorType)
	if typ.NumOut() == 1 {
		return func(args []reflect.Value) []reflect.Value {
			ctx := args[0].Interface().(context.Context)
			params, err := parameters(args[1])
			if err != nil {
				return []reflect.Value{reflect.ValueOf(&err).Elem()}
			}
			if err = d.InvokeVoid(ctx, params, serviceID); err != nil {
				return []reflect.Value{reflect.ValueOf(&err).Elem()}
			}
			return []reflect.Value{nilErr}
		}
	}
	outTyp := typ.Out(0)
	return func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		out := reflect.Zero(outTyp)
		params, err := parameters(args[1])
		if err != nil {
			return []reflect.Value{out, reflect.ValueOf(&err).Elem()}
		}
		res, err := d.invoke(ctx, params, serviceID, outTyp)
		if err != nil {
			return []reflect.Value{out, reflect.ValueOf(&err).Elem()}
		}
		if res != nil {
			resVal := reflect.ValueOf(res)
			if !resVal.Type().AssignableTo(outTyp) {
				err = errs.ResultTypeError(res, outTyp.String())
				return []reflect.Value{out, reflect.ValueOf(&err).Elem()}
			}
			out = reflect.New(outTyp).Elem()
			out.Set(resVal)
		}
		return []reflect.Value{out, nilErr}
	}
}

// parameters turns the request argument of a stub into named parameters.
func parameters(arg reflect.Value) (map[string]any, error) {
	if arg.Kind() == reflect.Pointer && arg.IsNil() {
		return map[string]any{}, nil
	}
	if params, ok := arg.Interface().(map[string]any); ok {
		return params, nil
	}
	params := make(map[string]any, 4)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &params,
		TagName: "json",
	})
	if err != nil {
		return nil, err
	}
	if err = decoder.Decode(arg.Interface()); err != nil {
		return nil, errs.ConvertError(arg.Interface(), "parameters", err)
	}
	return params, nil
}
