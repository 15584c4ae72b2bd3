// Package keypool rotates REST API keys and cools down keys that hit
// venue rate limits.
package keypool

import (
	"fmt"
	"sync"
	"time"
)

// Pool hands out API keys round-robin, skipping keys in cooldown.
type Pool struct {
	mu       sync.Mutex
	keys     []string
	next     int
	cooldown time.Duration
	cooledAt map[string]time.Time
	now      func() time.Time
}

// New creates a pool over the given keys. cooldown is how long a key sits
// out after a rate-limit hit.
func New(keys []string, cooldown time.Duration) (*Pool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key pool cannot be empty")
	}

	return &Pool{
		keys:     append([]string(nil), keys...),
		cooldown: cooldown,
		cooledAt: make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Next returns the next usable key. When every key is cooling down the
// least-recently-cooled key is returned so callers degrade to throttled
// requests instead of failing outright.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		key := p.keys[p.next]
		p.next = (p.next + 1) % len(p.keys)

		cooled, ok := p.cooledAt[key]
		if !ok || now.Sub(cooled) >= p.cooldown {
			delete(p.cooledAt, key)
			return key
		}
	}

	// Pool exhausted: pick the key whose cooldown expires first.
	var best string
	var bestAt time.Time
	for _, key := range p.keys {
		at := p.cooledAt[key]
		if best == "" || at.Before(bestAt) {
			best = key
			bestAt = at
		}
	}
	ExhaustedTotal.Inc()
	return best
}

// MarkRateLimited puts a key into cooldown after a 429 or venue throttle.
func (p *Pool) MarkRateLimited(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooledAt[key] = p.now()
	RateLimitedTotal.Inc()
	CooledKeys.Set(float64(len(p.cooledAt)))
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Available reports how many keys are currently outside cooldown.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	available := 0
	for _, key := range p.keys {
		cooled, ok := p.cooledAt[key]
		if !ok || now.Sub(cooled) >= p.cooldown {
			available++
		}
	}
	return available
}
