package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"eproxy/breaker/mocks"
	"eproxy/interceptor"
	"eproxy/rpc/message"
)

func TestInterceptor_Intercept(t *testing.T) {
	testCases := []struct {
		name      string
		result    *message.ResultMessage
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{name: "present", result: &message.ResultMessage{Result: 1}, wantLevel: zapcore.InfoLevel, wantMsg: "invoke: done"},
		{name: "absent", wantLevel: zapcore.WarnLevel, wantMsg: "invoke: no result"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			ctrl := gomock.NewController(t)
			invoker := mocks.NewMockInvoker(ctrl)
			invoker.EXPECT().Invoke(gomock.Any(), gomock.Any(), "Order.Get", "v1", false).Return(tc.result)
			inv := interceptor.NewProvider(invoker).GetInvocation(nil, map[string]any{"id": 1}, "Order.Get", "v1", nil)

			err := NewInterceptor(zap.New(core), zapcore.InfoLevel).Intercept(context.Background(), inv)
			require.NoError(t, err)
			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.wantLevel, entries[0].Level)
			assert.Equal(t, tc.wantMsg, entries[0].Message)
			assert.Equal(t, "Order.Get", entries[0].ContextMap()["service_id"])
			assert.Equal(t, "v1", entries[0].ContextMap()["service_key"])
		})
	}
}
