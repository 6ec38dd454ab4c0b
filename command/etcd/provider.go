package etcd

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"eproxy/command"
	"eproxy/internal/errs"
)

var _ command.Provider = (*Provider)(nil)

// Provider keeps every command stored as JSON under <prefix>/<service id> in
// memory and follows changes with a watch, so lookups never hit etcd.
type Provider struct {
	client   *clientv3.Client
	prefix   string
	strict   bool
	mutex    sync.RWMutex
	commands map[string]*command.ServiceCommand
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *zap.Logger

	// retryMin and retryMax bound the wait before a lost watch is resynced
	retryMin time.Duration
	retryMax time.Duration
}

func ProviderWithPrefix(prefix string) option.Option[Provider] {
	return func(p *Provider) {
		p.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// ProviderWithStrict makes unknown service ids an error instead of the default policy.
func ProviderWithStrict() option.Option[Provider] {
	return func(p *Provider) {
		p.strict = true
	}
}

// ProviderWithRetry sets the backoff used to resync after the watch is lost.
func ProviderWithRetry(minWait, maxWait time.Duration) option.Option[Provider] {
	return func(p *Provider) {
		p.retryMin = minWait
		p.retryMax = maxWait
	}
}

func ProviderWithLogger(logger *zap.Logger) option.Option[Provider] {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider loads the current commands and starts watching for changes.
func NewProvider(ctx context.Context, client *clientv3.Client, opts ...option.Option[Provider]) (*Provider, error) {
	p := &Provider{
		client:   client,
		prefix:   "/eproxy/commands",
		commands: make(map[string]*command.ServiceCommand, 16),
		done:     make(chan struct{}),
		logger:   zap.NewNop(),
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	rev, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.watch(watchCtx, rev)
	return p, nil
}

func (p *Provider) GetCommand(ctx context.Context, serviceID string) (*command.ServiceCommand, error) {
	p.mutex.RLock()
	cmd, ok := p.commands[serviceID]
	p.mutex.RUnlock()
	if ok {
		return cmd, nil
	}
	if p.strict {
		return nil, errs.CommandNotFound(serviceID)
	}
	return command.Default(serviceID), nil
}

// load replaces every command with what is stored now and returns the
// revision the snapshot was read at.
func (p *Provider) load(ctx context.Context) (int64, error) {
	resp, err := p.client.Get(ctx, p.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	commands := make(map[string]*command.ServiceCommand, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if cmd, ok := p.decode(kv); ok {
			commands[cmd.ServiceID] = cmd
		}
	}
	p.mutex.Lock()
	p.commands = commands
	p.mutex.Unlock()
	return resp.Header.GetRevision(), nil
}

// watch follows changes after rev. A closed or cancelled watch, on leader loss
// or compaction, is followed by a fresh snapshot and a new watch until Close.
func (p *Provider) watch(ctx context.Context, rev int64) {
	defer close(p.done)
	for {
		p.follow(ctx, rev)
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("command: watch lost, resyncing", zap.String("prefix", p.prefix))
		var ok bool
		if rev, ok = p.resync(ctx); !ok {
			return
		}
	}
}

func (p *Provider) follow(ctx context.Context, rev int64) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// start right after the snapshot so no change is missed in between
	watchCh := p.client.Watch(clientv3.WithRequireLeader(watchCtx), p.prefix+"/",
		clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for {
		select {
		case resp, ok := <-watchCh:
			if !ok || resp.Canceled {
				return
			}
			if resp.Err() != nil {
				p.logger.Warn("command: watch error", zap.Error(resp.Err()))
				continue
			}
			for _, ev := range resp.Events {
				switch ev.Type {
				case mvccpb.PUT:
					p.put(ev.Kv)
				case mvccpb.DELETE:
					p.delete(ev.Kv)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// resync reloads the snapshot with exponential backoff, false once closed.
func (p *Provider) resync(ctx context.Context) (int64, bool) {
	wait := p.retryMin
	for {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, false
		}
		rev, err := p.load(ctx)
		if err == nil {
			return rev, true
		}
		p.logger.Warn("command: resync failed", zap.Error(err), zap.Duration("retry_in", wait))
		if wait *= 2; wait > p.retryMax {
			wait = p.retryMax
		}
	}
}

func (p *Provider) decode(kv *mvccpb.KeyValue) (*command.ServiceCommand, bool) {
	cmd := &command.ServiceCommand{}
	if err := json.Unmarshal(kv.Value, cmd); err != nil {
		p.logger.Warn("command: bad command",
			zap.ByteString("key", kv.Key), zap.Error(err))
		return nil, false
	}
	if cmd.ServiceID == "" {
		cmd.ServiceID = p.serviceID(kv.Key)
	}
	return cmd, true
}

func (p *Provider) put(kv *mvccpb.KeyValue) {
	cmd, ok := p.decode(kv)
	if !ok {
		return
	}
	p.mutex.Lock()
	p.commands[cmd.ServiceID] = cmd
	p.mutex.Unlock()
	p.logger.Debug("command: updated", zap.String("service_id", cmd.ServiceID))
}

func (p *Provider) delete(kv *mvccpb.KeyValue) {
	p.mutex.Lock()
	delete(p.commands, p.serviceID(kv.Key))
	p.mutex.Unlock()
}

func (p *Provider) serviceID(key []byte) string {
	return strings.TrimPrefix(string(key), p.prefix+"/")
}

// Close stops the watch, the etcd client is left to its owner.
func (p *Provider) Close() error {
	p.cancel()
	<-p.done
	return nil
}
