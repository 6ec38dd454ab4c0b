package convert

import (
	"encoding/json"
	"math"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"eproxy/internal/errs"
	"eproxy/rpc/message"
)

// Converter turns a remote result into a value of the requested type.
type Converter interface {
	Convert(value any, typ reflect.Type) (any, error)
}

// RawType is the type that asks for the result as it came off the wire.
var RawType = reflect.TypeOf((*any)(nil)).Elem()

var _ Converter = TypeConverter{}

type TypeConverter struct{}

func (TypeConverter) Convert(value any, typ reflect.Type) (any, error) {
	if typ == nil {
		typ = RawType
	}
	if value == nil {
		return reflect.Zero(typ).Interface(), nil
	}
	switch v := value.(type) {
	case message.Payload:
		ptr := reflect.New(typ)
		if err := v.Decode(ptr.Interface()); err != nil {
			return nil, errs.ConvertError(value, typ.String(), err)
		}
		return ptr.Elem().Interface(), nil
	case json.RawMessage:
		return unmarshal(v, value, typ)
	}
	if typ.Kind() == reflect.Interface && reflect.TypeOf(value).Implements(typ) {
		return value, nil
	}
	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(typ) {
		return value, nil
	}
	if isNumber(src.Kind()) && isNumber(typ.Kind()) {
		dst := src.Convert(typ)
		if !sameNumber(src, dst) {
			return nil, errs.ConvertError(value, typ.String(), errs.ErrNumberRange)
		}
		return dst.Interface(), nil
	}
	if bs, ok := value.([]byte); ok {
		return unmarshal(bs, value, typ)
	}
	return decode(value, typ)
}

// To converts value with c and asserts the result to T.
func To[T any](c Converter, value any) (T, error) {
	var t T
	typ := reflect.TypeOf(&t).Elem()
	res, err := c.Convert(value, typ)
	if err != nil {
		return t, err
	}
	if res == nil {
		return t, nil
	}
	t, ok := res.(T)
	if !ok {
		return t, errs.ConvertError(res, typ.String(), nil)
	}
	return t, nil
}

func unmarshal(data []byte, value any, typ reflect.Type) (any, error) {
	ptr := reflect.New(typ)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, errs.ConvertError(value, typ.String(), err)
	}
	return ptr.Elem().Interface(), nil
}

func decode(value any, typ reflect.Type) (any, error) {
	ptr := reflect.New(typ)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result:           ptr.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errs.ConvertError(value, typ.String(), err)
	}
	if err = decoder.Decode(value); err != nil {
		return nil, errs.ConvertError(value, typ.String(), err)
	}
	return ptr.Elem().Interface(), nil
}

func isNumber(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// sameNumber reports whether dst still holds the number src holds. Float
// targets may round but not overflow, integer targets must be exact.
func sameNumber(src, dst reflect.Value) bool {
	if isFloat(dst.Kind()) {
		return !math.IsInf(dst.Float(), 0) || isFloat(src.Kind()) && math.IsInf(src.Float(), 0)
	}
	switch {
	case isFloat(src.Kind()):
		f := src.Float()
		if f != math.Trunc(f) {
			return false
		}
		if isUnsigned(dst.Kind()) {
			return f >= 0 && f < math.Exp2(64) && float64(dst.Uint()) == f
		}
		return f >= -math.Exp2(63) && f < math.Exp2(63) && float64(dst.Int()) == f
	case isUnsigned(src.Kind()):
		u := src.Uint()
		if isUnsigned(dst.Kind()) {
			return dst.Uint() == u
		}
		return dst.Int() >= 0 && uint64(dst.Int()) == u
	default:
		i := src.Int()
		if isUnsigned(dst.Kind()) {
			return i >= 0 && dst.Uint() == uint64(i)
		}
		return dst.Int() == i
	}
}

func isFloat(kind reflect.Kind) bool {
	return kind == reflect.Float32 || kind == reflect.Float64
}

func isUnsigned(kind reflect.Kind) bool {
	switch kind {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}
