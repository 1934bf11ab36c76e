package breaker

import "sync"

// Registry hands out one Breaker per dependency name, created lazily on
// first use. Each caller (the provider client, the webhook deliverer)
// holds its own Registry rather than reaching for a package-level
// singleton, so tests never leak breaker state across cases.
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	byID     map[string]*Breaker
	reporter Reporter
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, byID: make(map[string]*Breaker)}
}

// SetReporter wires a metrics sink applied to every breaker the registry
// already holds and to every one it creates from here on.
func (r *Registry) SetReporter(rep Reporter) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporter = rep
	for _, b := range r.byID {
		b.SetReporter(rep)
	}
	return r
}

func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.byID[name]; ok {
		return b
	}
	b := New(name, r.cfg).SetReporter(r.reporter)
	r.byID[name] = b
	return b
}
