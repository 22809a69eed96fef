package workmode

import (
	"sync"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

// Registry maps (Mode, implementation name) pairs to analyzer
// constructors, the way a configuration file declares which named
// analyzer implementation is active per mode (spec §4.4).
type Registry struct {
	mu   sync.RWMutex
	ctor map[Mode]map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctor: make(map[Mode]map[string]Constructor)}
}

// Register adds a named constructor for mode.
func (r *Registry) Register(mode Mode, impl string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctor[mode] == nil {
		r.ctor[mode] = make(map[string]Constructor)
	}
	r.ctor[mode][impl] = ctor
}

// Build constructs an analyzer for mode using the named implementation.
// Returns an Unsupported error if no constructor is registered.
func (r *Registry) Build(mode Mode, impl string, freq uint64, refPower float32) (Analyzer, error) {
	r.mu.RLock()
	ctor, ok := r.ctor[mode][impl]
	r.mu.RUnlock()
	if !ok {
		return nil, payloaderr.New(payloaderr.Unsupported, "no analyzer implementation for mode "+mode.String())
	}
	return ctor(freq, refPower)
}

// SupportedModesMask ORs together the Flag of every mode with at least
// one registered implementation, for the published SupportedModes
// heartbeat field (spec §6).
func (r *Registry) SupportedModesMask() Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var mask Flag
	for mode, impls := range r.ctor {
		if len(impls) > 0 {
			mask |= mode.Flag()
		}
	}
	return mask
}
