package resilience

import "sync"

// Breakers lazily creates one [CircuitBreaker] per key, all sharing the same
// configuration. It is safe for concurrent use.
type Breakers struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers returns an empty set. cfg.Name is used as a prefix for the
// per-key breaker names.
func NewBreakers(cfg Config) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it on first use.
func (b *Breakers) Get(key string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[key]
	if !ok {
		cfg := b.cfg
		cfg.Name = b.cfg.Name + "/" + key
		cb = NewCircuitBreaker(cfg)
		b.breakers[key] = cb
	}
	return cb
}

// Execute runs fn through the breaker for key.
func (b *Breakers) Execute(key string, fn func() error) error {
	return b.Get(key).Execute(fn)
}

// Reset closes every breaker in the set.
func (b *Breakers) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cb := range b.breakers {
		cb.Reset()
	}
}
