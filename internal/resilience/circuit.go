// Package resilience isolates failures of external authorities behind
// circuit breakers and retry with backoff.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; calls pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately without contacting the authority.
	CircuitOpen
	// CircuitHalfOpen admits exactly one probe call to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit
// is open (or a half-open probe is already in flight).
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls breaker behavior. Thresholds are policy
// parameters; every deployment knob here is surfaced through the app
// config rather than hard-coded.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures within FailureWindow
	// that opens the circuit. Default: 5.
	FailureThreshold int

	// FailureWindow is the rolling window over which failures are
	// counted. Failures older than the window no longer count.
	// Default: 60s.
	FailureWindow time.Duration

	// ResetTimeout is how long the circuit stays open before admitting a
	// half-open probe. Default: 30s.
	ResetTimeout time.Duration

	// ResetBackoffMultiplier grows the reset timeout each time a
	// half-open probe fails. 1.0 disables growth. Default: 2.0.
	ResetBackoffMultiplier float64

	// MaxResetTimeout caps backoff growth. Default: 5m.
	MaxResetTimeout time.Duration

	// ShouldTrip decides whether an error counts against the breaker.
	// If nil, every non-nil error counts. Malformed-payload errors must
	// be excluded by the caller: they are data issues, not availability.
	ShouldTrip func(err error) bool

	// OnStateChange is invoked on every state transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the default breaker policy.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:       5,
		FailureWindow:          60 * time.Second,
		ResetTimeout:           30 * time.Second,
		ResetBackoffMultiplier: 2.0,
		MaxResetTimeout:        5 * time.Minute,
	}
}

// CircuitBreaker guards calls to a single authority.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failures      []time.Time // rolling window of recent failures
	openedAt      time.Time
	currentReset  time.Duration
	probeInFlight bool

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = def.FailureWindow
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ResetBackoffMultiplier < 1 {
		cfg.ResetBackoffMultiplier = def.ResetBackoffMultiplier
	}
	if cfg.MaxResetTimeout <= 0 {
		cfg.MaxResetTimeout = def.MaxResetTimeout
	}
	return &CircuitBreaker{
		cfg:          cfg,
		state:        CircuitClosed,
		currentReset: cfg.ResetTimeout,
		nowFunc:      time.Now,
	}
}

// Execute runs fn through the breaker. If the circuit is open the call is
// rejected with ErrCircuitOpen before fn is invoked.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteVal is Execute with a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current state, accounting for reset-timeout expiry.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.currentReset {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	old := cb.state
	cb.state = CircuitClosed
	cb.failures = nil
	cb.probeInFlight = false
	cb.currentReset = cb.cfg.ResetTimeout
	if old != CircuitClosed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(old, CircuitClosed)
	}
}

// Counters returns the in-window failure count and state for observability.
func (cb *CircuitBreaker) Counters() (windowFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pruneLocked(cb.nowFunc())
	return len(cb.failures), cb.state
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) >= cb.currentReset {
			cb.transition(CircuitHalfOpen)
			cb.probeInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		// At most one probe at a time.
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	now := cb.nowFunc()

	if err == nil || !shouldTrip(err) {
		switch cb.state {
		case CircuitHalfOpen:
			// Probe succeeded: close and reset everything.
			cb.transition(CircuitClosed)
			cb.failures = nil
			cb.probeInFlight = false
			cb.currentReset = cb.cfg.ResetTimeout
		case CircuitClosed:
			cb.failures = nil
		}
		return
	}

	switch cb.state {
	case CircuitClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneLocked(now)
		if len(cb.failures) >= cb.cfg.FailureThreshold {
			cb.openLocked(now, cb.cfg.ResetTimeout)
		}
	case CircuitHalfOpen:
		// Probe failed: reopen with a longer timeout.
		next := time.Duration(float64(cb.currentReset) * cb.cfg.ResetBackoffMultiplier)
		if next > cb.cfg.MaxResetTimeout {
			next = cb.cfg.MaxResetTimeout
		}
		cb.probeInFlight = false
		cb.openLocked(now, next)
	}
}

func (cb *CircuitBreaker) openLocked(now time.Time, reset time.Duration) {
	cb.openedAt = now
	cb.currentReset = reset
	cb.transition(CircuitOpen)
}

// pruneLocked drops failures older than the rolling window.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.cfg.FailureWindow)
	i := 0
	for i < len(cb.failures) && cb.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = cb.failures[i:]
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// AuthorityBreakers holds one breaker per authority. It is owned by the
// orchestrator and injected where needed so tests get fresh state.
type AuthorityBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewAuthorityBreakers creates a per-authority breaker registry.
func NewAuthorityBreakers(cfg CircuitBreakerConfig) *AuthorityBreakers {
	return &AuthorityBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named authority, creating one if needed.
func (ab *AuthorityBreakers) Get(authority string) *CircuitBreaker {
	ab.mu.RLock()
	cb, ok := ab.breakers[authority]
	ab.mu.RUnlock()
	if ok {
		return cb
	}

	ab.mu.Lock()
	defer ab.mu.Unlock()
	if cb, ok = ab.breakers[authority]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ab.cfg)
	ab.breakers[authority] = cb
	return cb
}

// States snapshots all breaker states.
func (ab *AuthorityBreakers) States() map[string]CircuitState {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	states := make(map[string]CircuitState, len(ab.breakers))
	for name, cb := range ab.breakers {
		states[name] = cb.State()
	}
	return states
}
