package interceptor

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"

	"eproxy/breaker"
)

// Provider builds invocations bound to the breaker-protected invoker.
type Provider struct {
	invoker breaker.Invoker
}

func NewProvider(invoker breaker.Invoker) *Provider {
	return &Provider{invoker: invoker}
}

func (p *Provider) GetInvocation(target any, parameters map[string]any,
	serviceID, serviceKey string, returnType reflect.Type) *Invocation {
	return &Invocation{
		Target:     target,
		Parameters: parameters,
		ServiceID:  serviceID,
		ServiceKey: serviceKey,
		ReturnType: returnType,
		invoker:    p.invoker,
	}
}

// GetCacheInvocation is GetInvocation plus the cache key of the call.
func (p *Provider) GetCacheInvocation(target any, parameters map[string]any,
	serviceID, serviceKey string, returnType reflect.Type) *Invocation {
	inv := p.GetInvocation(target, parameters, serviceID, serviceKey, returnType)
	inv.CacheKey = CacheKey(serviceID, serviceKey, parameters)
	return inv
}

// CacheKey identifies a call by service and parameters. encoding/json sorts map
// keys, so equal parameter maps give equal keys.
func CacheKey(serviceID, serviceKey string, parameters map[string]any) string {
	h := fnv.New64a()
	data, err := json.Marshal(parameters)
	if err != nil {
		// parameters JSON cannot represent still get a stable key
		data = []byte(fmt.Sprintf("%v", parameters))
	}
	_, _ = h.Write(data)
	if serviceKey == "" {
		return fmt.Sprintf("%s:%x", serviceID, h.Sum64())
	}
	return fmt.Sprintf("%s:%s:%x", serviceID, serviceKey, h.Sum64())
}
