package command

import (
	"context"
	"sync"

	"eproxy/internal/errs"
)

var _ Provider = (*StaticProvider)(nil)

// StaticProvider serves commands known up front, usually from the config file.
type StaticProvider struct {
	mutex    sync.RWMutex
	commands map[string]*ServiceCommand
	// template builds the command for unknown ids, nil makes them an error
	template func(serviceID string) *ServiceCommand
}

func NewStaticProvider(commands ...*ServiceCommand) *StaticProvider {
	p := &StaticProvider{
		commands: make(map[string]*ServiceCommand, len(commands)),
		template: Default,
	}
	for _, c := range commands {
		p.commands[c.ServiceID] = c
	}
	return p
}

// Strict makes unknown service ids fail instead of using the default policy.
func (p *StaticProvider) Strict() *StaticProvider {
	p.template = nil
	return p
}

func (p *StaticProvider) Set(c *ServiceCommand) {
	p.mutex.Lock()
	p.commands[c.ServiceID] = c
	p.mutex.Unlock()
}

func (p *StaticProvider) GetCommand(ctx context.Context, serviceID string) (*ServiceCommand, error) {
	p.mutex.RLock()
	c, ok := p.commands[serviceID]
	p.mutex.RUnlock()
	if ok {
		return c, nil
	}
	if p.template == nil {
		return nil, errs.CommandNotFound(serviceID)
	}
	return p.template(serviceID), nil
}
