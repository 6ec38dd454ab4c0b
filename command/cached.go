package command

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var _ Provider = (*CachedProvider)(nil)

// CachedProvider keeps resolved commands for ttl. Concurrent lookups of the same
// id share one call to the underlying provider.
type CachedProvider struct {
	provider Provider
	ttl      time.Duration
	group    singleflight.Group
	mutex    sync.RWMutex
	entries  map[string]cachedEntry
	now      func() time.Time
}

type cachedEntry struct {
	cmd      *ServiceCommand
	expireAt time.Time
}

func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]cachedEntry, 16),
		now:      time.Now,
	}
}

func (p *CachedProvider) GetCommand(ctx context.Context, serviceID string) (*ServiceCommand, error) {
	p.mutex.RLock()
	entry, ok := p.entries[serviceID]
	p.mutex.RUnlock()
	if ok && p.now().Before(entry.expireAt) {
		return entry.cmd, nil
	}
	val, err, _ := p.group.Do(serviceID, func() (interface{}, error) {
		p.mutex.RLock()
		entry, ok := p.entries[serviceID]
		p.mutex.RUnlock()
		if ok && p.now().Before(entry.expireAt) {
			return entry.cmd, nil
		}
		cmd, er := p.provider.GetCommand(ctx, serviceID)
		if er != nil {
			return nil, er
		}
		p.mutex.Lock()
		p.entries[serviceID] = cachedEntry{cmd: cmd, expireAt: p.now().Add(p.ttl)}
		p.mutex.Unlock()
		return cmd, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*ServiceCommand), nil
}

// Invalidate drops the cached command, the next lookup goes to the provider.
func (p *CachedProvider) Invalidate(serviceID string) {
	p.mutex.Lock()
	delete(p.entries, serviceID)
	p.mutex.Unlock()
}
