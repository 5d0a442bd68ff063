package circuitbreaker

import "sync"

// Registry holds one Breaker per target, created lazily. Circuit state is
// explicitly per-process (spec.md section 4.8: "a cross-instance
// broadcaster is out of scope").
type Registry struct {
	cfg Config
	mu  sync.Mutex
	m   map[string]*Breaker
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, m: make(map[string]*Breaker)}
}

func (r *Registry) For(target string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[target]; ok {
		return b
	}
	b := New(r.cfg)
	r.m[target] = b
	return b
}
