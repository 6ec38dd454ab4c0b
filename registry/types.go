package registry

import (
	"context"
	"io"
	"strings"
)

type ServiceInstance struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Weight  uint32 `json:"weight"`
	Group   string `json:"group"`
}

type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypeAdd
	EventTypeDelete
)

type Event struct {
	Type     EventType
	Instance ServiceInstance
}

// Registry lists the instances a cluster strategy or a resolver can retarget to.
type Registry interface {
	io.Closer
	Register(ctx context.Context, inst ServiceInstance) error
	Unregister(ctx context.Context, inst ServiceInstance) error
	ListServices(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Subscribe(serviceName string) (<-chan Event, error)
}

// ServiceName is the registry name of the service owning serviceID, the part
// before the last dot: "Order" for "Order.Get".
func ServiceName(serviceID string) string {
	if i := strings.LastIndexByte(serviceID, '.'); i > 0 {
		return serviceID[:i]
	}
	return serviceID
}
