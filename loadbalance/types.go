package loadbalance

import (
	"context"

	"eproxy/registry"
)

// Picker chooses one instance for a call. Done, when set, is called with the
// outcome of the call so feedback pickers can adjust.
type Picker interface {
	Pick(ctx context.Context, instances []registry.ServiceInstance) (PickResult, error)
}

type PickResult struct {
	Instance registry.ServiceInstance
	Done     func(err error)
}

// Finish reports the outcome to the picker, a no-op without feedback.
func (r PickResult) Finish(err error) {
	if r.Done != nil {
		r.Done(err)
	}
}

type Filter func(ctx context.Context, instance registry.ServiceInstance) bool

type groupKey struct{}

// WithGroup restricts picks to the instances of one group.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey{}, group)
}

func GroupFilter(ctx context.Context, instance registry.ServiceInstance) bool {
	group, ok := ctx.Value(groupKey{}).(string)
	if !ok {
		// There are no groups here, but all groups can be used
		return true
	}
	return group == instance.Group
}

// Candidates applies the filter, a nil filter keeps everything.
func Candidates(ctx context.Context, filter Filter, instances []registry.ServiceInstance) []registry.ServiceInstance {
	if filter == nil {
		return instances
	}
	candidates := make([]registry.ServiceInstance, 0, len(instances))
	for _, ins := range instances {
		if filter(ctx, ins) {
			candidates = append(candidates, ins)
		}
	}
	return candidates
}
