package breaker

import (
	"sync"
	"time"

	"eproxy/command"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// rollingWindow is how long failures are counted before the counters reset.
const rollingWindow = 10 * time.Second

// circuit is the breaker of one service id. The thresholds come from the
// service command of every call, so a reloaded command applies at once.
type circuit struct {
	mu       sync.Mutex
	state    State
	openedAt time.Time
	// generation moves on every state change, outcomes of calls admitted
	// under an older generation are dropped
	generation uint64
	// probing is set while the single half-open trial call is in flight
	probing bool

	windowStart    time.Time
	windowTotal    int
	windowFailures int
}

func newCircuit(now time.Time) *circuit {
	return &circuit{windowStart: now}
}

// allow reports whether a call may go out and moves an expired open circuit
// to half-open. The returned generation must be handed back to record.
func (c *circuit) allow(cmd *command.ServiceCommand, now time.Time) (uint64, bool) {
	if cmd.CircuitBreakerForceOpen {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateOpen:
		if now.Sub(c.openedAt) < cmd.BreakerSleepWindow() {
			return 0, false
		}
		c.moveTo(StateHalfOpen)
		c.probing = true
		return c.generation, true
	case StateHalfOpen:
		if c.probing {
			return 0, false
		}
		c.probing = true
		return c.generation, true
	default:
		return c.generation, true
	}
}

// record returns the state before and after the outcome so callers can log
// transitions. An outcome from an earlier generation leaves the circuit as is.
func (c *circuit) record(cmd *command.ServiceCommand, generation uint64, failed bool, now time.Time) (from, to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from = c.state
	if generation != c.generation {
		return from, c.state
	}
	switch c.state {
	case StateHalfOpen:
		c.probing = false
		if failed {
			c.moveTo(StateOpen)
			c.openedAt = now
		} else {
			c.moveTo(StateClosed)
			c.resetWindow(now)
		}
	case StateClosed:
		if now.Sub(c.windowStart) > rollingWindow {
			c.resetWindow(now)
		}
		c.windowTotal++
		if failed {
			c.windowFailures++
		}
		if c.tripped(cmd) {
			c.moveTo(StateOpen)
			c.openedAt = now
			c.resetWindow(now)
		}
	}
	return from, c.state
}

func (c *circuit) moveTo(state State) {
	c.state = state
	c.generation++
}

func (c *circuit) tripped(cmd *command.ServiceCommand) bool {
	if c.windowFailures == 0 || c.windowTotal < cmd.BreakerRequestVolumeThreshold {
		return false
	}
	return c.windowFailures*100 >= cmd.BreakerErrorThresholdPercentage*c.windowTotal
}

func (c *circuit) resetWindow(now time.Time) {
	c.windowStart = now
	c.windowTotal = 0
	c.windowFailures = 0
}

func (c *circuit) current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
