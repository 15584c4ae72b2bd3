// Package circuitbreaker guards REST endpoints: after a failure the
// endpoint enters a cooldown window during which callers serve cached
// values, and after enough consecutive failures the client's connection
// pool is rebuilt.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds breaker configuration.
type Config struct {
	// FailureLimit is the consecutive-failure count that triggers OnTrip.
	FailureLimit int
	// Cooldown is the window after a failure during which Allow returns
	// false and callers fall back to cached values.
	Cooldown time.Duration
	// OnTrip runs once per trip, typically rebuilding the HTTP transport.
	OnTrip func()
	Logger *zap.Logger
}

// Breaker tracks one endpoint's health.
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	onTrip       func()
	logger       *zap.Logger

	mu            sync.Mutex
	ok            int64
	failed        int64
	consecutive   int
	cooldownUntil time.Time
	now           func() time.Time
}

// Status is a point-in-time snapshot for debugging endpoints.
type Status struct {
	Name        string
	OK          int64
	Failed      int64
	Consecutive int
	CoolingDown bool
}

// Registry keys breakers by endpoint so each REST path degrades
// independently.
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.FailureLimit <= 0 {
		return nil, fmt.Errorf("failure limit must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}, nil
}

// For returns the breaker for an endpoint, creating it on first use.
func (r *Registry) For(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[endpoint]
	if !ok {
		b = &Breaker{
			name:         endpoint,
			failureLimit: r.cfg.FailureLimit,
			cooldown:     r.cfg.Cooldown,
			onTrip:       r.cfg.OnTrip,
			logger:       r.cfg.Logger.With(zap.String("endpoint", endpoint)),
			now:          time.Now,
		}
		r.breakers[endpoint] = b
	}
	return b
}

// Statuses returns a snapshot of every tracked endpoint.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	return out
}

// Allow reports whether a live request should be attempted. During the
// cooldown window it returns false and the caller serves its cached value.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.now().Before(b.cooldownUntil) {
		CooldownServesTotal.Inc()
		return false
	}
	return true
}

// RecordSuccess clears the consecutive-failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.ok++
	b.consecutive = 0
	b.mu.Unlock()
}

// RecordFailure bumps counters, opens the cooldown window and fires OnTrip
// when the consecutive-failure limit is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failed++
	b.consecutive++
	b.cooldownUntil = b.now().Add(b.cooldown)
	tripped := b.consecutive == b.failureLimit
	consecutive := b.consecutive
	b.mu.Unlock()

	FailuresTotal.Inc()

	if tripped {
		b.logger.Warn("circuit-breaker-tripped",
			zap.Int("consecutive-failures", consecutive),
			zap.Duration("cooldown", b.cooldown))
		TripsTotal.Inc()
		if b.onTrip != nil {
			b.onTrip()
		}
	}
}

// Status returns the current counters.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Name:        b.name,
		OK:          b.ok,
		Failed:      b.failed,
		Consecutive: b.consecutive,
		CoolingDown: b.now().Before(b.cooldownUntil),
	}
}
