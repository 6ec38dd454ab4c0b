package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eproxy/command"
	"eproxy/command/mocks"
	"eproxy/internal/errs"
	"eproxy/rpc/message"
)

type fakeRemote struct {
	calls int
	fn    func(ctx context.Context) (*message.ResultMessage, error)
}

func (f *fakeRemote) Invoke(ctx context.Context, parameters map[string]any,
	serviceID, serviceKey string, decodeRaw bool) (*message.ResultMessage, error) {
	f.calls++
	return f.fn(ctx)
}

var errBoom = errors.New("boom")

func testCommand() *command.ServiceCommand {
	cmd := command.Default("Order.Get")
	cmd.BreakerRequestVolumeThreshold = 4
	cmd.BreakerErrorThresholdPercentage = 50
	cmd.BreakerSleepWindowInMilliseconds = 1000
	return cmd
}

func TestRemoteInvoker_Invoke(t *testing.T) {
	testCases := []struct {
		name    string
		cmd     func() *command.ServiceCommand
		fn      func(ctx context.Context) (*message.ResultMessage, error)
		wantRes *message.ResultMessage
		wantN   int
	}{
		{
			name: "present",
			cmd:  testCommand,
			fn: func(ctx context.Context) (*message.ResultMessage, error) {
				return &message.ResultMessage{Result: "ok"}, nil
			},
			wantRes: &message.ResultMessage{Result: "ok"},
			wantN:   1,
		},
		{
			name: "failure is absence",
			cmd:  testCommand,
			fn: func(ctx context.Context) (*message.ResultMessage, error) {
				return nil, errBoom
			},
			wantN: 1,
		},
		{
			name: "force open",
			cmd: func() *command.ServiceCommand {
				cmd := testCommand()
				cmd.CircuitBreakerForceOpen = true
				return cmd
			},
			fn: func(ctx context.Context) (*message.ResultMessage, error) {
				return &message.ResultMessage{Result: "ok"}, nil
			},
			wantN: 0,
		},
		{
			name: "timeout",
			cmd: func() *command.ServiceCommand {
				cmd := testCommand()
				cmd.ExecutionTimeoutInMilliseconds = 10
				return cmd
			},
			fn: func(ctx context.Context) (*message.ResultMessage, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantN: 1,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			remote := &fakeRemote{fn: tc.fn}
			invoker := NewRemoteInvoker(remote, command.NewStaticProvider(tc.cmd()))
			res := invoker.Invoke(context.Background(), nil, "Order.Get", "", true)
			assert.Equal(t, tc.wantRes, res)
			assert.Equal(t, tc.wantN, remote.calls)
		})
	}
}

func TestRemoteInvoker_CommandError(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().GetCommand(gomock.Any(), "Order.Get").Return(nil, errs.CommandNotFound("Order.Get"))
	remote := &fakeRemote{}
	invoker := NewRemoteInvoker(remote, provider)
	assert.Nil(t, invoker.Invoke(context.Background(), nil, "Order.Get", "", false))
	assert.Equal(t, 0, remote.calls)
}

func TestRemoteInvoker_StateTransitions(t *testing.T) {
	now := time.Unix(1700000000, 0)
	failing := true
	remote := &fakeRemote{fn: func(ctx context.Context) (*message.ResultMessage, error) {
		if failing {
			return nil, errBoom
		}
		return &message.ResultMessage{Result: 1}, nil
	}}
	invoker := NewRemoteInvoker(remote, command.NewStaticProvider(testCommand()))
	invoker.now = func() time.Time { return now }
	ctx := context.Background()

	// below the request volume the circuit stays closed
	for i := 0; i < 3; i++ {
		assert.Nil(t, invoker.Invoke(ctx, nil, "Order.Get", "", true))
	}
	assert.Equal(t, StateClosed, invoker.State("Order.Get"))

	assert.Nil(t, invoker.Invoke(ctx, nil, "Order.Get", "", true))
	assert.Equal(t, StateOpen, invoker.State("Order.Get"))
	require.Equal(t, 4, remote.calls)

	// open circuit short-circuits
	assert.Nil(t, invoker.Invoke(ctx, nil, "Order.Get", "", true))
	assert.Equal(t, 4, remote.calls)

	// after the sleep window one trial goes out and fails
	now = now.Add(time.Second)
	assert.Nil(t, invoker.Invoke(ctx, nil, "Order.Get", "", true))
	assert.Equal(t, 5, remote.calls)
	assert.Equal(t, StateOpen, invoker.State("Order.Get"))

	// next trial succeeds and closes the circuit
	now = now.Add(time.Second)
	failing = false
	assert.Equal(t, &message.ResultMessage{Result: 1}, invoker.Invoke(ctx, nil, "Order.Get", "", true))
	assert.Equal(t, StateClosed, invoker.State("Order.Get"))
	assert.Equal(t, StateClosed, invoker.State("User.Get"))
}

func TestCircuit_HalfOpenSingleProbe(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cmd := testCommand()
	c := newCircuit(now)
	c.moveTo(StateOpen)
	c.openedAt = now

	_, ok := c.allow(cmd, now.Add(500*time.Millisecond))
	assert.False(t, ok)
	trial, ok := c.allow(cmd, now.Add(time.Second))
	assert.True(t, ok)
	_, ok = c.allow(cmd, now.Add(time.Second))
	assert.False(t, ok)
	from, to := c.record(cmd, trial, false, now.Add(time.Second))
	assert.Equal(t, StateHalfOpen, from)
	assert.Equal(t, StateClosed, to)
	_, ok = c.allow(cmd, now.Add(time.Second))
	assert.True(t, ok)
}

func TestCircuit_StaleOutcomeIgnored(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cmd := testCommand()
	c := newCircuit(now)

	// admitted while closed, still in flight when the circuit trips
	stale, ok := c.allow(cmd, now)
	require.True(t, ok)
	for i := 0; i < cmd.BreakerRequestVolumeThreshold; i++ {
		gen, ok := c.allow(cmd, now)
		require.True(t, ok)
		c.record(cmd, gen, true, now)
	}
	require.Equal(t, StateOpen, c.current())

	trial, ok := c.allow(cmd, now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, StateHalfOpen, c.current())

	from, to := c.record(cmd, stale, false, now.Add(time.Second))
	assert.Equal(t, StateHalfOpen, from)
	assert.Equal(t, StateHalfOpen, to)
	_, ok = c.allow(cmd, now.Add(time.Second))
	assert.False(t, ok)

	from, to = c.record(cmd, trial, true, now.Add(time.Second))
	assert.Equal(t, StateHalfOpen, from)
	assert.Equal(t, StateOpen, to)

	// a success from the closed generation does not count after reopening
	_, to = c.record(cmd, stale, false, now.Add(2*time.Second))
	assert.Equal(t, StateOpen, to)
}

func TestCircuit_WindowRolls(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cmd := testCommand()
	c := newCircuit(now)
	for i := 0; i < 3; i++ {
		c.record(cmd, 0, true, now)
	}
	// the old failures fall out of the window
	_, to := c.record(cmd, 0, true, now.Add(rollingWindow+time.Second))
	assert.Equal(t, StateClosed, to)
	assert.Equal(t, 1, c.windowTotal)
}
