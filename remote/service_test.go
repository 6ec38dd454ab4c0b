package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eproxy/internal/errs"
	"eproxy/rpc"
	"eproxy/rpc/compress/snappy"
	"eproxy/rpc/message"
	"eproxy/rpc/mocks"
	"eproxy/rpc/serialize/json"
)

func TestService_Invoke(t *testing.T) {
	testCases := []struct {
		name      string
		mock      func(ctrl *gomock.Controller) rpc.Proxy
		serviceID string
		decodeRaw bool

		wantResult any
		wantNil    bool
		wantErr    error
	}{
		{
			name:      "generic value",
			serviceID: "Order.Get",
			decodeRaw: true,
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, req *message.Request) (*message.Response, error) {
						assert.Equal(t, "Order.Get", req.ServiceID)
						assert.Equal(t, "v1", req.ServiceKey)
						assert.JSONEq(t, `{"id":1}`, string(req.Data))
						return &message.Response{Serializer: 1, Data: []byte(`{"id":1,"amount":3.5}`)}, nil
					})
				return p
			},
			wantResult: map[string]any{"id": float64(1), "amount": 3.5},
		},
		{
			name:      "typed payload",
			serviceID: "Order.Get",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).
					Return(&message.Response{Serializer: 1, Data: []byte(`{"id":1}`)}, nil)
				return p
			},
			wantResult: message.Payload{Data: []byte(`{"id":1}`), Serializer: json.Serializer{}},
		},
		{
			name:      "empty body",
			serviceID: "Order.Cancel",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(&message.Response{}, nil)
				return p
			},
		},
		{
			name:      "remote error",
			serviceID: "Order.Get",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).
					Return(&message.Response{Error: []byte("not found")}, nil)
				return p
			},
			wantNil: true,
			wantErr: errs.ErrRemote,
		},
		{
			name:      "transport error",
			serviceID: "Order.Get",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errs.ReadRespFailError)
				return p
			},
			wantNil: true,
			wantErr: errs.ReadRespFailError,
		},
		{
			name:      "oneway",
			serviceID: "Order.Notify",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errs.OnewayError)
				return p
			},
			wantResult: nil,
		},
		{
			name:      "unknown serializer",
			serviceID: "Order.Get",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				p := mocks.NewMockProxy(ctrl)
				p.EXPECT().Invoke(gomock.Any(), gomock.Any()).
					Return(&message.Response{Serializer: 9, Data: []byte(`1`)}, nil)
				return p
			},
			wantNil: true,
			wantErr: errs.UnknownSerializer,
		},
		{
			name:      "empty service id",
			serviceID: "",
			mock: func(ctrl *gomock.Controller) rpc.Proxy {
				return mocks.NewMockProxy(ctrl)
			},
			wantNil: true,
			wantErr: errs.InvalidServiceID,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			s := NewService(tc.mock(ctrl))
			res, err := s.Invoke(context.Background(), map[string]any{"id": 1}, tc.serviceID, "v1", tc.decodeRaw)
			assert.True(t, errors.Is(err, tc.wantErr) || err == tc.wantErr)
			if tc.wantNil {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.Equal(t, tc.wantResult, res.Result)
		})
	}
}

func TestService_RequestMeta(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProxy(ctrl)
	var got *message.Request
	p.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req *message.Request) (*message.Response, error) {
			got = req
			return &message.Response{Compresser: req.Compresser, Serializer: req.Serializer, Data: req.Data}, nil
		}).Times(2)

	s := NewService(p, ServiceWithCompressor(snappy.Compressor{}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ctx = rpc.WithMeta(ctx, map[string]string{"traceparent": "00-abc"})

	res, err := s.Invoke(ctx, map[string]any{"id": 7}, "Order.Get", "", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7)}, res.Result)
	assert.Equal(t, snappy.Compressor{}.Code(), got.Compresser)
	assert.Equal(t, "00-abc", got.Meta["traceparent"])
	assert.NotEmpty(t, got.Meta[rpc.MetaDeadline])
	first := got.MessageId

	_, err = s.Invoke(rpc.UsingOneway(context.Background()), nil, "Order.Get", "", true)
	require.NoError(t, err)
	assert.Equal(t, "true", got.Meta[rpc.MetaOneway])
	assert.Equal(t, first+1, got.MessageId)
}
