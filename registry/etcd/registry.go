package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gotomicro/ekit/bean/option"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"eproxy/registry"
)

var _ registry.Registry = (*Registry)(nil)

var typesMap = map[mvccpb.Event_EventType]registry.EventType{
	mvccpb.PUT:    registry.EventTypeAdd,
	mvccpb.DELETE: registry.EventTypeDelete,
}

type Registry struct {
	client      *clientv3.Client
	sess        *concurrency.Session
	prefix      string
	ttl         int
	mutex       sync.Mutex
	watchCancel []func()
	logger      *zap.Logger
}

func RegistryWithPrefix(prefix string) option.Option[Registry] {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// RegistryWithTTL sets the lease ttl in seconds, etcd defaults to 60
func RegistryWithTTL(ttl int) option.Option[Registry] {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func RegistryWithLogger(logger *zap.Logger) option.Option[Registry] {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(c *clientv3.Client, opts ...option.Option[Registry]) (*Registry, error) {
	r := &Registry{
		client: c,
		prefix: "/eproxy/instances",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	var sessOpts []concurrency.SessionOption
	if r.ttl > 0 {
		sessOpts = append(sessOpts, concurrency.WithTTL(r.ttl))
	}
	sess, err := concurrency.NewSession(c, sessOpts...)
	if err != nil {
		return nil, err
	}
	r.sess = sess
	return r, nil
}

func (r *Registry) Register(ctx context.Context, ins registry.ServiceInstance) error {
	val, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	// the instance disappears with the session lease when the process dies
	_, err = r.client.Put(ctx, r.instanceKey(ins), string(val), clientv3.WithLease(r.sess.Lease()))
	return err
}

func (r *Registry) Unregister(ctx context.Context, ins registry.ServiceInstance) error {
	_, err := r.client.Delete(ctx, r.instanceKey(ins))
	return err
}

func (r *Registry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	res := make([]registry.ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var si registry.ServiceInstance
		if err = json.Unmarshal(kv.Value, &si); err != nil {
			return nil, err
		}
		res = append(res, si)
	}
	return res, nil
}

func (r *Registry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = clientv3.WithRequireLeader(ctx)
	r.mutex.Lock()
	r.watchCancel = append(r.watchCancel, cancel)
	r.mutex.Unlock()
	watchCh := r.client.Watch(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	res := make(chan registry.Event)
	go func() {
		defer close(res)
		for {
			select {
			case resp, ok := <-watchCh:
				if !ok || resp.Canceled {
					return
				}
				if resp.Err() != nil {
					r.logger.Warn("registry: watch error",
						zap.String("service", serviceName), zap.Error(resp.Err()))
					continue
				}
				for _, event := range resp.Events {
					ev := registry.Event{Type: typesMap[event.Type]}
					// a DELETE event carries no value, only the key
					if event.Type == mvccpb.PUT {
						if err := json.Unmarshal(event.Kv.Value, &ev.Instance); err != nil {
							r.logger.Warn("registry: bad instance",
								zap.ByteString("key", event.Kv.Key), zap.Error(err))
							ev.Type = registry.EventTypeUnknown
						}
					}
					select {
					case res <- ev:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return res, nil
}

func (r *Registry) Close() error {
	r.mutex.Lock()
	for _, cancel := range r.watchCancel {
		cancel()
	}
	r.watchCancel = nil
	r.mutex.Unlock()
	if r.sess == nil {
		return nil
	}
	// the client comes from outside and may still be used by others, keep it open
	return r.sess.Close()
}

func (r *Registry) instanceKey(ins registry.ServiceInstance) string {
	return fmt.Sprintf("%s/%s/%s", r.prefix, ins.Name, ins.Address)
}

func (r *Registry) serviceKey(serviceName string) string {
	return fmt.Sprintf("%s/%s/", r.prefix, serviceName)
}
