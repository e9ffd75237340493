// Package circuitbreaker implements per-service failure isolation for the
// gateway's proxy path.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// requests to a failing backend. It has three states:
//
//   - CLOSED: normal operation, requests pass through
//   - OPEN: backend failing, requests blocked until cooldown
//   - HALF-OPEN: one trial request probes whether the backend recovered
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	cb := registry.GetBreaker("events")
//	if ok, trial := cb.Allow(); ok {
//	    // Forward request...
//	    if failed {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess(trial)
//	    }
//	}
//
// Only the half-open trial's success resets the failure counter; a success
// while closed deliberately leaves the counter untouched.
package circuitbreaker
