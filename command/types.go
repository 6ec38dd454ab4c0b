package command

import (
	"context"
	"strings"
	"time"

	"eproxy/internal/errs"
)

//go:generate mockgen -package=mocks -destination=mocks/provider.mock.go -source=types.go Provider

// Provider resolves the invocation policy of a service. Implementations must
// be safe for concurrent use and return the same command for the same id
// within a short window.
type Provider interface {
	GetCommand(ctx context.Context, serviceID string) (*ServiceCommand, error)
}

// StrategyType names the recovery applied when a call yields no result.
type StrategyType int

const (
	FailOver StrategyType = iota
	Injection
	FallBack
	Random
	RoundRobin
	LeastActive
	Broadcast
)

var strategyNames = [...]string{
	FailOver:    "FailOver",
	Injection:   "Injection",
	FallBack:    "FallBack",
	Random:      "Random",
	RoundRobin:  "RoundRobin",
	LeastActive: "LeastActive",
	Broadcast:   "Broadcast",
}

func (s StrategyType) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "Unknown"
	}
	return strategyNames[s]
}

// ParseStrategy is case-insensitive, "failover" and "FailOver" are the same.
func ParseStrategy(name string) (StrategyType, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return StrategyType(i), nil
		}
	}
	return 0, errs.UnknownStrategy(name)
}

func (s StrategyType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StrategyType) UnmarshalText(text []byte) error {
	st, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ServiceCommand is the per-service invocation policy. Commands handed out by a
// Provider are shared between calls and must be treated as read-only.
type ServiceCommand struct {
	ServiceID           string `json:"service_id" mapstructure:"service_id"`
	RequestCacheEnabled bool   `json:"request_cache_enabled" mapstructure:"request_cache_enabled"`
	// FallBackName is only used when Strategy is FallBack, empty means none
	FallBackName string       `json:"fallback_name" mapstructure:"fallback_name"`
	Strategy     StrategyType `json:"strategy" mapstructure:"strategy"`
	// FailoverCluster is how many times the FailOver strategy re-issues the call
	FailoverCluster int `json:"failover_cluster" mapstructure:"failover_cluster"`

	CircuitBreakerForceOpen          bool `json:"circuit_breaker_force_open" mapstructure:"circuit_breaker_force_open"`
	BreakerRequestVolumeThreshold    int  `json:"breaker_request_volume_threshold" mapstructure:"breaker_request_volume_threshold"`
	BreakerErrorThresholdPercentage  int  `json:"breaker_error_threshold_percentage" mapstructure:"breaker_error_threshold_percentage"`
	BreakerSleepWindowInMilliseconds int  `json:"breaker_sleep_window_in_milliseconds" mapstructure:"breaker_sleep_window_in_milliseconds"`
	ExecutionTimeoutInMilliseconds   int  `json:"execution_timeout_in_milliseconds" mapstructure:"execution_timeout_in_milliseconds"`

	// Injection is the JSON document returned by the Injection strategy
	Injection string `json:"injection" mapstructure:"injection"`
}

// Default returns the policy used for services nobody configured.
func Default(serviceID string) *ServiceCommand {
	return &ServiceCommand{
		ServiceID:                        serviceID,
		Strategy:                         FailOver,
		FailoverCluster:                  3,
		BreakerRequestVolumeThreshold:    20,
		BreakerErrorThresholdPercentage:  50,
		BreakerSleepWindowInMilliseconds: 60000,
		ExecutionTimeoutInMilliseconds:   1000,
	}
}

func (c *ServiceCommand) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutInMilliseconds) * time.Millisecond
}

func (c *ServiceCommand) BreakerSleepWindow() time.Duration {
	return time.Duration(c.BreakerSleepWindowInMilliseconds) * time.Millisecond
}
