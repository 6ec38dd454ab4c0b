package command_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eproxy/command"
	"eproxy/command/mocks"
	"eproxy/internal/errs"
)

func TestParseStrategy(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    command.StrategyType
		wantErr error
	}{
		{name: "exact", input: "FallBack", want: command.FallBack},
		{name: "lower case", input: "roundrobin", want: command.RoundRobin},
		{name: "failover", input: "failover", want: command.FailOver},
		{name: "unknown", input: "Forking", wantErr: errs.ErrUnknownStrategy},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := command.ParseStrategy(tc.input)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, st)
		})
	}
}

func TestServiceCommand_JSON(t *testing.T) {
	var cmd command.ServiceCommand
	err := json.Unmarshal([]byte(`{"service_id":"Order.Get","strategy":"fallback","fallback_name":"order-default","execution_timeout_in_milliseconds":200}`), &cmd)
	require.NoError(t, err)
	assert.Equal(t, command.FallBack, cmd.Strategy)
	assert.Equal(t, "order-default", cmd.FallBackName)
	assert.Equal(t, 200*time.Millisecond, cmd.ExecutionTimeout())

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"strategy":"FallBack"`)
}

func TestStaticProvider_GetCommand(t *testing.T) {
	order := &command.ServiceCommand{ServiceID: "Order.Get", RequestCacheEnabled: true}
	testCases := []struct {
		name      string
		provider  *command.StaticProvider
		serviceID string
		want      *command.ServiceCommand
		wantErr   error
	}{
		{
			name:      "configured",
			provider:  command.NewStaticProvider(order),
			serviceID: "Order.Get",
			want:      order,
		},
		{
			name:      "default",
			provider:  command.NewStaticProvider(order),
			serviceID: "User.Get",
			want:      command.Default("User.Get"),
		},
		{
			name:      "strict",
			provider:  command.NewStaticProvider(order).Strict(),
			serviceID: "User.Get",
			wantErr:   errs.ErrCommandNotFound,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := tc.provider.GetCommand(context.Background(), tc.serviceID)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.want, cmd)
		})
	}
}

func TestCachedProvider_GetCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cmd := &command.ServiceCommand{ServiceID: "Order.Get"}
	p := mocks.NewMockProvider(ctrl)
	p.EXPECT().GetCommand(gomock.Any(), "Order.Get").
		DoAndReturn(func(ctx context.Context, id string) (*command.ServiceCommand, error) {
			// hold the call so that concurrent lookups pile up on singleflight
			time.Sleep(20 * time.Millisecond)
			return cmd, nil
		}).Times(1)
	p.EXPECT().GetCommand(gomock.Any(), "User.Get").
		Return(nil, errors.New("config center down")).Times(2)

	cp := command.NewCachedProvider(p, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cp.GetCommand(context.Background(), "Order.Get")
			assert.NoError(t, err)
			assert.Same(t, cmd, got)
		}()
	}
	wg.Wait()
	got, err := cp.GetCommand(context.Background(), "Order.Get")
	require.NoError(t, err)
	assert.Same(t, cmd, got)

	// failures are not cached
	_, err = cp.GetCommand(context.Background(), "User.Get")
	assert.EqualError(t, err, "config center down")
	_, err = cp.GetCommand(context.Background(), "User.Get")
	assert.EqualError(t, err, "config center down")
}

func TestCachedProvider_Invalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := mocks.NewMockProvider(ctrl)
	first := &command.ServiceCommand{ServiceID: "Order.Get"}
	second := &command.ServiceCommand{ServiceID: "Order.Get", RequestCacheEnabled: true}
	gomock.InOrder(
		p.EXPECT().GetCommand(gomock.Any(), "Order.Get").Return(first, nil),
		p.EXPECT().GetCommand(gomock.Any(), "Order.Get").Return(second, nil),
	)
	cp := command.NewCachedProvider(p, time.Minute)
	got, err := cp.GetCommand(context.Background(), "Order.Get")
	require.NoError(t, err)
	assert.Same(t, first, got)

	cp.Invalidate("Order.Get")
	got, err = cp.GetCommand(context.Background(), "Order.Get")
	require.NoError(t, err)
	assert.Same(t, second, got)
}
