package circuitbreaker_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatewaylabs/api-gateway/internal/circuitbreaker"
)

func TestCircuitBreaker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CircuitBreaker Suite")
}

// allow discards the trial flag for tests that only care about admission.
func allow(cb *circuitbreaker.Breaker) bool {
	ok, _ := cb.Allow()
	return ok
}

var _ = Describe("Breaker", func() {
	var cb *circuitbreaker.Breaker

	Describe("NewBreaker", func() {
		It("should create a breaker in closed state", func() {
			cb = circuitbreaker.NewBreaker(5, 30*time.Second)
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State transitions", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewBreaker(3, 100*time.Millisecond)
		})

		Context("when in CLOSED state", func() {
			It("should allow requests without a trial", func() {
				ok, trial := cb.Allow()
				Expect(ok).To(BeTrue())
				Expect(trial).To(BeFalse())
			})

			It("should remain closed after failures below threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(allow(cb)).To(BeTrue())
			})

			It("should transition to OPEN after reaching failure threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should not reset the failure count on success", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordSuccess(false)
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should block requests", func() {
				Expect(allow(cb)).To(BeFalse())
			})

			It("should remain OPEN before cooldown expires", func() {
				time.Sleep(50 * time.Millisecond)
				Expect(allow(cb)).To(BeFalse())
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})

			It("should transition to HALF-OPEN after cooldown", func() {
				time.Sleep(150 * time.Millisecond)
				ok, trial := cb.Allow()
				Expect(ok).To(BeTrue())
				Expect(trial).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})
		})

		Context("when in HALF-OPEN state", func() {
			BeforeEach(func() {
				cb.RecordFailure()
				cb.RecordFailure()
				cb.RecordFailure()
				time.Sleep(150 * time.Millisecond)
				ok, trial := cb.Allow()
				Expect(ok).To(BeTrue())
				Expect(trial).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should admit only one trial request", func() {
				Expect(allow(cb)).To(BeFalse())
				Expect(allow(cb)).To(BeFalse())
			})

			It("should close and reset failures on trial success", func() {
				cb.RecordSuccess(true)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Snapshot().Failures).To(BeZero())

				// Two failures below a threshold of three must stay closed,
				// proving the counter was reset.
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})

			It("should ignore a success from a request that does not own the trial", func() {
				// A slow request admitted back when the breaker was still
				// closed finishes now. Its success says nothing about the
				// pending trial and must not close the breaker.
				cb.RecordSuccess(false)
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
				Expect(allow(cb)).To(BeFalse())

				// The real trial outcome still decides.
				cb.RecordSuccess(true)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})

			It("should reopen and restart the cooldown on trial failure", func() {
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
				Expect(allow(cb)).To(BeFalse())

				time.Sleep(150 * time.Millisecond)
				Expect(allow(cb)).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should release the trial slot on CancelTrial", func() {
				Expect(allow(cb)).To(BeFalse())
				cb.CancelTrial()
				ok, trial := cb.Allow()
				Expect(ok).To(BeTrue())
				Expect(trial).To(BeTrue())
			})

			It("should admit a new trial after a failed one reopens and cools down", func() {
				cb.RecordFailure()
				time.Sleep(150 * time.Millisecond)
				Expect(allow(cb)).To(BeTrue())
				Expect(allow(cb)).To(BeFalse())
			})
		})
	})

	Describe("Concurrent half-open trials", func() {
		It("should admit exactly one of many concurrent callers", func() {
			cb = circuitbreaker.NewBreaker(1, 10*time.Millisecond)
			cb.RecordFailure()
			time.Sleep(20 * time.Millisecond)

			var wg sync.WaitGroup
			var admitted, trials int64
			var mu sync.Mutex

			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, trial := cb.Allow()
					if ok {
						mu.Lock()
						admitted++
						if trial {
							trials++
						}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(admitted).To(Equal(int64(1)))
			Expect(trials).To(Equal(int64(1)))
		})
	})

	Describe("Snapshot", func() {
		It("should report failures and last failure time", func() {
			cb = circuitbreaker.NewBreaker(5, time.Second)
			cb.RecordFailure()
			cb.RecordFailure()

			snap := cb.Snapshot()
			Expect(snap.State).To(Equal(circuitbreaker.StateClosed))
			Expect(snap.Failures).To(Equal(2))
			Expect(snap.LastFailure).To(BeTemporally("~", time.Now(), time.Second))
		})
	})
})

var _ = Describe("State", func() {
	It("should format all states", func() {
		Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
		Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
		Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
	})
})
