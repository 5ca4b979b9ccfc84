package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected because the model's
// circuit is open.
var ErrCircuitOpen = eris.New("model circuit is open")

// BreakerConfig controls per-model circuit behavior.
type BreakerConfig struct {
	// TransientThreshold is the number of consecutive transient failures
	// before the circuit opens. Default: 5.
	TransientThreshold int

	// ResetTimeout is how long an open circuit stays open before allowing a
	// probe. A circuit opened by a permanent error never resets on its own.
	// Default: 30s.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		TransientThreshold: 5,
		ResetTimeout:       30 * time.Second,
	}
}

// Breaker is a circuit breaker for a single model backend. A permanent
// provider error latches the breaker open; transient failures open it only
// after TransientThreshold consecutive misses and it self-heals after
// ResetTimeout.
type Breaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	latched             bool
	consecutiveFailures int
	openedAt            time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TransientThreshold <= 0 {
		cfg.TransientThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// Allow reports whether a call may proceed, returning ErrCircuitOpen otherwise.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latched {
		return ErrCircuitOpen
	}
	if b.consecutiveFailures >= b.cfg.TransientThreshold {
		if b.nowFunc().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		// Probe: allow one call through and re-open on the next failure.
		b.consecutiveFailures = b.cfg.TransientThreshold - 1
	}
	return nil
}

// Record feeds a call outcome into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.consecutiveFailures = 0
	case IsPermanent(err):
		b.latched = true
	default:
		b.consecutiveFailures++
		if b.consecutiveFailures == b.cfg.TransientThreshold {
			b.openedAt = b.nowFunc()
		}
	}
}

// Latched reports whether the breaker was opened by a permanent error.
func (b *Breaker) Latched() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latched
}

// ModelBreakers manages one breaker per model ID.
type ModelBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewModelBreakers creates a per-model breaker registry.
func NewModelBreakers(cfg BreakerConfig) *ModelBreakers {
	return &ModelBreakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the model, creating one if needed.
func (mb *ModelBreakers) Get(modelID string) *Breaker {
	mb.mu.RLock()
	b, ok := mb.breakers[modelID]
	mb.mu.RUnlock()
	if ok {
		return b
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if b, ok = mb.breakers[modelID]; ok {
		return b
	}
	b = NewBreaker(mb.cfg)
	mb.breakers[modelID] = b
	return b
}
