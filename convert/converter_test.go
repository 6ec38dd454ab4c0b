package convert

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"eproxy/internal/errs"
	"eproxy/rpc/message"
	jsonserializer "eproxy/rpc/serialize/json"
)

type order struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	Timeout time.Duration `json:"timeout"`
}

func TestTypeConverter_Convert(t *testing.T) {
	testCases := []struct {
		name    string
		value   any
		typ     reflect.Type
		want    any
		wantErr error
	}{
		{
			name:  "raw keeps value",
			value: map[string]any{"id": float64(1)},
			typ:   RawType,
			want:  map[string]any{"id": float64(1)},
		},
		{
			name:  "nil type is raw",
			value: "x",
			want:  "x",
		},
		{
			name:  "nil to struct",
			value: nil,
			typ:   reflect.TypeOf(order{}),
			want:  order{},
		},
		{
			name:  "nil to pointer",
			value: nil,
			typ:   reflect.TypeOf(&order{}),
			want:  (*order)(nil),
		},
		{
			name:  "assignable",
			value: "tom",
			typ:   reflect.TypeOf(""),
			want:  "tom",
		},
		{
			name:  "number",
			value: float64(3),
			typ:   reflect.TypeOf(int64(0)),
			want:  int64(3),
		},
		{
			name:  "negative integral float to int",
			value: float64(-7),
			typ:   reflect.TypeOf(0),
			want:  -7,
		},
		{
			name:  "int to float",
			value: int64(9),
			typ:   reflect.TypeOf(float64(0)),
			want:  float64(9),
		},
		{
			name:  "float64 to float32",
			value: float64(2.5),
			typ:   reflect.TypeOf(float32(0)),
			want:  float32(2.5),
		},
		{
			name:  "small uint to uint8",
			value: uint64(255),
			typ:   reflect.TypeOf(uint8(0)),
			want:  uint8(255),
		},
		{
			name:    "fraction to int",
			value:   float64(2.75),
			typ:     reflect.TypeOf(0),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "negative to unsigned",
			value:   float64(-1),
			typ:     reflect.TypeOf(uint8(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "negative int to unsigned",
			value:   int64(-1),
			typ:     reflect.TypeOf(uint(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "overflow int8",
			value:   float64(300),
			typ:     reflect.TypeOf(int8(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "overflow int64",
			value:   float64(1e19),
			typ:     reflect.TypeOf(int64(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "uint64 beyond int64",
			value:   uint64(math.MaxUint64),
			typ:     reflect.TypeOf(int64(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "overflow float32",
			value:   float64(1e40),
			typ:     reflect.TypeOf(float32(0)),
			wantErr: errs.ErrConvert,
		},
		{
			name:  "payload",
			value: message.Payload{Data: []byte(`{"id":2,"name":"book"}`), Serializer: jsonserializer.Serializer{}},
			typ:   reflect.TypeOf(order{}),
			want:  order{ID: 2, Name: "book"},
		},
		{
			name:  "payload raw",
			value: message.Payload{Data: []byte(`{"id":2}`), Serializer: jsonserializer.Serializer{}},
			typ:   RawType,
			want:  map[string]any{"id": float64(2)},
		},
		{
			name:  "json bytes",
			value: json.RawMessage(`{"id":3}`),
			typ:   reflect.TypeOf(&order{}),
			want:  &order{ID: 3},
		},
		{
			name:  "generic map",
			value: map[string]any{"id": float64(4), "name": "pen", "timeout": "2s"},
			typ:   reflect.TypeOf(order{}),
			want:  order{ID: 4, Name: "pen", Timeout: 2 * time.Second},
		},
		{
			name:  "weak string",
			value: float64(5),
			typ:   reflect.TypeOf(""),
			want:  "5",
		},
		{
			name:    "bad payload",
			value:   message.Payload{Data: []byte(`{`), Serializer: jsonserializer.Serializer{}},
			typ:     reflect.TypeOf(order{}),
			wantErr: errs.ErrConvert,
		},
		{
			name:    "incompatible",
			value:   []any{"a"},
			typ:     reflect.TypeOf(order{}),
			wantErr: errs.ErrConvert,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TypeConverter{}.Convert(tc.value, tc.typ)
			assert.True(t, errors.Is(err, tc.wantErr))
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTo(t *testing.T) {
	o, err := To[order](TypeConverter{}, map[string]any{"id": 1})
	assert.NoError(t, err)
	assert.Equal(t, order{ID: 1}, o)

	raw, err := To[any](TypeConverter{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, raw)

	p, err := To[*order](TypeConverter{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, p)
}
