package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"eproxy/internal/errs"
)

type orderDto struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
	Amount float64  `json:"amount"`
}

func TestSerializer_DecodeIntoStruct(t *testing.T) {
	s := Serializer{}
	data, err := s.Encode(map[string]any{
		"id":     12,
		"name":   "order-12",
		"tags":   []any{"a", "b"},
		"amount": 9.5,
	})
	require.NoError(t, err)

	var dto orderDto
	err = s.Decode(data, &dto)
	require.NoError(t, err)
	assert.Equal(t, orderDto{ID: 12, Name: "order-12", Tags: []string{"a", "b"}, Amount: 9.5}, dto)
}

func TestSerializer_DecodeGeneric(t *testing.T) {
	s := Serializer{}
	data, err := s.Encode(orderDto{ID: 1, Name: "x"})
	require.NoError(t, err)

	var res any
	err = s.Decode(data, &res)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":     float64(1),
		"name":   "x",
		"tags":   nil,
		"amount": float64(0),
	}, res)
}

func TestSerializer_ProtoMessage(t *testing.T) {
	s := Serializer{}
	st, err := structpb.NewStruct(map[string]any{"k": "v"})
	require.NoError(t, err)
	data, err := s.Encode(st)
	require.NoError(t, err)

	got := &structpb.Struct{}
	require.NoError(t, s.Decode(data, got))
	assert.Equal(t, "v", got.Fields["k"].GetStringValue())
}

func TestSerializer_Errors(t *testing.T) {
	s := Serializer{}
	_, err := s.Encode(make(chan int))
	assert.Equal(t, errs.ProtoSerializeTypError, err)

	var dto orderDto
	err = s.Decode(nil, dto)
	assert.Equal(t, errs.ProtoDeserializeTypError, err)
}
