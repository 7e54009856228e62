package transport

import (
	"fmt"
	"sync"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// registry implements Registry.
type registry struct {
	mu     sync.RWMutex
	byMode map[domain.Mode]Transport
}

// NewRegistry builds a registry keyed by each transport's mode.
func NewRegistry(transports ...Transport) Registry {
	reg := &registry{byMode: make(map[domain.Mode]Transport)}
	for _, t := range transports {
		if t == nil {
			continue
		}
		reg.mu.Lock()
		reg.byMode[t.Mode()] = t
		reg.mu.Unlock()
	}
	return reg
}

// TransportFor returns the transport registered for mode.
func (r *registry) TransportFor(mode domain.Mode) (Transport, error) {
	if r == nil {
		return nil, fmt.Errorf("transport registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byMode[mode]
	if !ok {
		return nil, fmt.Errorf("no transport registered for mode %q", mode)
	}
	return t, nil
}
