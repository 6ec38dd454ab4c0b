package proto

import (
	"encoding/json"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"eproxy/internal/errs"
	"eproxy/rpc/serialize"
)

var _ serialize.Serializer = Serializer{}

// Serializer -> Protobuf serialization protocol.
// Anything that is not a proto.Message travels as a structpb.Value, so
// named parameters and generic results need no generated messages.
type Serializer struct{}

func (s Serializer) Code() byte {
	return 2
}

func (s Serializer) Encode(val any) ([]byte, error) {
	if msg, ok := val.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	pv, err := toValue(val)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pv)
}

// toValue accepts anything JSON can represent; struct values go through a
// JSON round trip because structpb only knows the generic shapes.
func toValue(val any) (*structpb.Value, error) {
	pv, err := structpb.NewValue(val)
	if err == nil {
		return pv, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, errs.ProtoSerializeTypError
	}
	var generic any
	if err = json.Unmarshal(data, &generic); err != nil {
		return nil, errs.ProtoSerializeTypError
	}
	return structpb.NewValue(generic)
}

func (s Serializer) Decode(data []byte, val any) error {
	if msg, ok := val.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errs.ProtoDeserializeTypError
	}
	pv := &structpb.Value{}
	if err := proto.Unmarshal(data, pv); err != nil {
		return err
	}
	generic := pv.AsInterface()
	if p, ok := val.(*any); ok {
		*p = generic
		return nil
	}
	if generic == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           val,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(generic)
}
