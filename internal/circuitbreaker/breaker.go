package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests until cooldown
	StateHalfOpen              // Testing recovery with one trial request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker is a per-service circuit breaker. Failures accumulate while
// closed; at the threshold the breaker opens and blocks traffic until the
// cooldown elapses, after which exactly one trial request is admitted.
type Breaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	lastFailure      time.Time
	trialInFlight    bool
	failureThreshold int
	cooldown         time.Duration
}

// Snapshot is a point-in-time copy of the breaker's state for reporting.
type Snapshot struct {
	State       State
	Failures    int
	LastFailure time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: threshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a request may proceed to the backend and whether
// it was admitted as the half-open trial.
//
// An open breaker transitions to half-open once the cooldown has elapsed
// since the last recorded failure. While half-open, only one caller is
// admitted as the trial; concurrent callers are rejected until that trial
// resolves. The trial's owner must report its outcome with RecordSuccess
// or RecordFailure, or release the slot with CancelTrial if the backend
// was never contacted.
func (cb *Breaker) Allow() (allowed, trial bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.trialInFlight = false
	}

	switch cb.state {
	case StateClosed:
		return true, false
	case StateOpen:
		return false, false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	default:
		return true, false
	}
}

// RecordSuccess reports a successful backend outcome. Only the half-open
// trial's own success closes the breaker and resets the failure count: a
// request admitted earlier, while the breaker was still closed, may finish
// after the breaker has opened and gone half-open, and must not resolve a
// trial it does not own. While closed, success is a no-op: the
// consecutive-failure count is only reset by a half-open trial.
func (cb *Breaker) RecordSuccess(trial bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateHalfOpen || !trial {
		return
	}

	cb.state = StateClosed
	cb.failures = 0
	cb.trialInFlight = false
}

// RecordFailure reports a failed backend outcome. A failed trial reopens
// the breaker and restarts the cooldown; while closed, reaching the
// threshold opens it.
func (cb *Breaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.trialInFlight = false
		return
	}

	if cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

// CancelTrial releases the half-open trial slot when the admitted request
// never reached the backend (e.g. the health cache reported it down), so a
// later request can take the trial instead of the breaker wedging.
func (cb *Breaker) CancelTrial() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

// State returns the current state without side effects: an open breaker
// past its cooldown still reads as OPEN until Allow observes it.
func (cb *Breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *Breaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Snapshot{
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
}
