package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatewaylabs/api-gateway/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var reg *circuitbreaker.Registry

	BeforeEach(func() {
		reg = circuitbreaker.NewRegistry(5, 30*time.Second)
	})

	Describe("GetBreaker", func() {
		It("should lazily create a breaker per service", func() {
			cb := reg.GetBreaker("events")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same service", func() {
			first := reg.GetBreaker("events")
			second := reg.GetBreaker("events")
			Expect(first).To(BeIdenticalTo(second))
		})

		It("should keep breakers independent across services", func() {
			events := reg.GetBreaker("events")
			calendar := reg.GetBreaker("calendar")
			Expect(events).NotTo(BeIdenticalTo(calendar))

			for i := 0; i < 5; i++ {
				events.RecordFailure()
			}
			Expect(events.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(calendar.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return one instance under concurrent first access", func() {
			var wg sync.WaitGroup
			results := make([]*circuitbreaker.Breaker, 16)

			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					results[idx] = reg.GetBreaker("matchmaking")
				}(i)
			}
			wg.Wait()

			for _, cb := range results {
				Expect(cb).To(BeIdenticalTo(results[0]))
			}
		})
	})

	Describe("Stats", func() {
		It("should snapshot every known breaker", func() {
			reg.GetBreaker("events").RecordFailure()
			reg.GetBreaker("calendar")

			stats := reg.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["events"].Failures).To(Equal(1))
			Expect(stats["calendar"].State).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Reset", func() {
		It("should drop all breakers", func() {
			cb := reg.GetBreaker("events")
			for i := 0; i < 5; i++ {
				cb.RecordFailure()
			}

			reg.Reset()
			Expect(reg.Stats()).To(BeEmpty())
			Expect(reg.GetBreaker("events").State()).To(Equal(circuitbreaker.StateClosed))
		})
	})
})
