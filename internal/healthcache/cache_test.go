package healthcache_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatewaylabs/api-gateway/internal/healthcache"
	"github.com/gatewaylabs/api-gateway/internal/registry"
)

func TestHealthcache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Healthcache Suite")
}

var _ = Describe("Cache", func() {
	var (
		log        *slog.Logger
		backend    *httptest.Server
		probeCount atomic.Int64
		healthCode atomic.Int64
		route      *registry.Route
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		probeCount.Store(0)
		healthCode.Store(http.StatusOK)

		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				probeCount.Add(1)
				w.WriteHeader(int(healthCode.Load()))
			}
		}))

		var err error
		route, err = registry.NewRoute("events", backend.URL, []string{"/events"}, "/health")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		backend.Close()
	})

	newCache := func(ttl time.Duration) *healthcache.Cache {
		probe := healthcache.NewProbe(time.Second, log)
		return healthcache.New(probe, ttl, log, nil)
	}

	Describe("IsHealthy", func() {
		It("should probe on first lookup and cache the result", func() {
			cache := newCache(30 * time.Second)

			Expect(cache.IsHealthy(route)).To(BeTrue())
			Expect(cache.IsHealthy(route)).To(BeTrue())
			Expect(cache.IsHealthy(route)).To(BeTrue())

			Expect(probeCount.Load()).To(Equal(int64(1)))
		})

		It("should reuse a cached unhealthy status within the TTL", func() {
			healthCode.Store(http.StatusInternalServerError)
			cache := newCache(30 * time.Second)

			Expect(cache.IsHealthy(route)).To(BeFalse())
			Expect(cache.IsHealthy(route)).To(BeFalse())
			Expect(probeCount.Load()).To(Equal(int64(1)))
		})

		It("should probe again once the TTL has expired", func() {
			cache := newCache(50 * time.Millisecond)

			Expect(cache.IsHealthy(route)).To(BeTrue())
			time.Sleep(80 * time.Millisecond)

			healthCode.Store(http.StatusServiceUnavailable)
			Expect(cache.IsHealthy(route)).To(BeFalse())
			Expect(probeCount.Load()).To(Equal(int64(2)))
		})

		It("should treat redirects as healthy", func() {
			healthCode.Store(http.StatusFound)
			cache := newCache(30 * time.Second)
			Expect(cache.IsHealthy(route)).To(BeTrue())
		})

		It("should mark an unreachable backend unhealthy", func() {
			down, err := registry.NewRoute("down", "http://127.0.0.1:1", []string{"/down"}, "/health")
			Expect(err).NotTo(HaveOccurred())

			cache := newCache(30 * time.Second)
			Expect(cache.IsHealthy(down)).To(BeFalse())

			entry, ok := cache.Status("down")
			Expect(ok).To(BeTrue())
			Expect(entry.Healthy).To(BeFalse())
		})

		It("should coalesce concurrent lookups into one probe", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				probeCount.Add(1)
				time.Sleep(50 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			}))
			defer slow.Close()

			slowRoute, err := registry.NewRoute("slow", slow.URL, []string{"/slow"}, "/health")
			Expect(err).NotTo(HaveOccurred())

			probeCount.Store(0)
			cache := newCache(30 * time.Second)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					Expect(cache.IsHealthy(slowRoute)).To(BeTrue())
				}()
			}
			wg.Wait()

			Expect(probeCount.Load()).To(Equal(int64(1)))
		})
	})

	Describe("Status", func() {
		It("should not trigger a probe", func() {
			cache := newCache(30 * time.Second)

			_, ok := cache.Status("events")
			Expect(ok).To(BeFalse())
			Expect(probeCount.Load()).To(BeZero())
		})

		It("should reflect the last completed probe", func() {
			cache := newCache(30 * time.Second)
			cache.IsHealthy(route)

			entry, ok := cache.Status("events")
			Expect(ok).To(BeTrue())
			Expect(entry.Healthy).To(BeTrue())
			Expect(entry.CheckedAt).To(BeTemporally("~", time.Now(), time.Second))
		})
	})
})

var _ = Describe("Probe", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	})

	It("should time out against a hanging backend", func() {
		hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer hang.Close()

		route, err := registry.NewRoute("hang", hang.URL, []string{"/hang"}, "/health")
		Expect(err).NotTo(HaveOccurred())

		probe := healthcache.NewProbe(50*time.Millisecond, log)
		Expect(probe.Check(route)).To(BeFalse())
	})

	It("should treat 4xx as unhealthy", func() {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer backend.Close()

		route, err := registry.NewRoute("svc", backend.URL, []string{"/svc"}, "/health")
		Expect(err).NotTo(HaveOccurred())

		probe := healthcache.NewProbe(time.Second, log)
		Expect(probe.Check(route)).To(BeFalse())
	})
})
