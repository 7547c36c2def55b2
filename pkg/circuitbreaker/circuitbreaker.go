// Package circuitbreaker guards repeated mutation failures against a
// single mirror. Sync and AutoCreate retry on every subsequent event by
// design, so without a breaker a mirror the API server keeps rejecting
// would be hammered on every reconcile pass.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/kubereflector/controller/pkg/annotations"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means mutations against the mirror proceed normally.
	StateClosed State = iota
	// StateOpen means failures exceeded the threshold; mutations are skipped.
	StateOpen
	// StateHalfOpen means the breaker is testing whether the mirror recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config contains circuit breaker configuration.
type Config struct {
	FailureThreshold         int
	ResetTimeout             time.Duration
	HalfOpenSuccessThreshold int
}

// DefaultConfig returns sensible defaults for guarding mirror mutations.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		ResetTimeout:             5 * time.Minute,
		HalfOpenSuccessThreshold: 2,
	}
}

// mirrorKey identifies one mirror's mutation history by kind plus
// qualified name. Kind is included because a Secret and a ConfigMap can
// share a QN without being the same resource.
type mirrorKey struct {
	kind string
	qn   annotations.QN
}

type mirrorState struct {
	lastFailure          time.Time
	lastError            error
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	mu                   sync.RWMutex
}

// CircuitBreaker tracks mutation failures per mirror.
type CircuitBreaker struct {
	states sync.Map // mirrorKey -> *mirrorState
	config Config
}

// New creates a CircuitBreaker with the given configuration.
func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{config: config}
}

// NewWithDefaults creates a CircuitBreaker with DefaultConfig.
func NewWithDefaults() *CircuitBreaker {
	return New(DefaultConfig())
}

func (cb *CircuitBreaker) getOrCreateState(key mirrorKey) *mirrorState {
	state, _ := cb.states.LoadOrStore(key, &mirrorState{state: StateClosed})
	return state.(*mirrorState)
}

// AllowRequest reports whether a mutation against this mirror should
// proceed, and drives the Open -> HalfOpen transition once ResetTimeout
// has elapsed.
func (cb *CircuitBreaker) AllowRequest(kind string, qn annotations.QN) bool {
	state := cb.getOrCreateState(mirrorKey{kind, qn})

	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(state.lastFailure) >= cb.config.ResetTimeout {
			state.state = StateHalfOpen
			state.consecutiveSuccesses = 0
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful mutation and returns the resulting state.
func (cb *CircuitBreaker) RecordSuccess(kind string, qn annotations.QN) State {
	state := cb.getOrCreateState(mirrorKey{kind, qn})

	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFailures = 0
	state.lastError = nil

	switch state.state {
	case StateHalfOpen:
		state.consecutiveSuccesses++
		if state.consecutiveSuccesses >= cb.config.HalfOpenSuccessThreshold {
			state.state = StateClosed
			state.consecutiveSuccesses = 0
		}
	case StateOpen:
		if time.Since(state.lastFailure) >= cb.config.ResetTimeout {
			state.state = StateHalfOpen
			state.consecutiveSuccesses = 1
		}
	case StateClosed:
		state.consecutiveSuccesses = 0
	}

	return state.state
}

// RecordFailure records a failed mutation and returns the resulting
// state and whether this call just opened the circuit.
func (cb *CircuitBreaker) RecordFailure(kind string, qn annotations.QN, err error) (State, bool) {
	state := cb.getOrCreateState(mirrorKey{kind, qn})

	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFailures++
	state.consecutiveSuccesses = 0
	state.lastFailure = time.Now()
	state.lastError = err

	justOpened := false

	switch state.state {
	case StateClosed:
		if state.consecutiveFailures >= cb.config.FailureThreshold {
			state.state = StateOpen
			justOpened = true
		}
	case StateHalfOpen:
		state.state = StateOpen
		justOpened = true
	case StateOpen:
	}

	return state.state, justOpened
}

