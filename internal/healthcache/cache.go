package healthcache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gatewaylabs/api-gateway/internal/metrics"
	"github.com/gatewaylabs/api-gateway/internal/registry"
)

// Entry is the last completed probe result for one service.
type Entry struct {
	Healthy   bool
	CheckedAt time.Time
}

// Cache holds per-service health status with a fixed TTL. Lookups within
// the TTL return the cached value; stale lookups trigger a probe. Probes
// for the same service are coalesced so N concurrent stale readers cause
// exactly one outbound health check.
type Cache struct {
	mutex   sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	group   singleflight.Group
	probe   *Probe
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a health cache backed by the given probe. metrics may be nil.
func New(probe *Probe, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		probe:   probe,
		logger:  logger,
		metrics: m,
	}
}

// IsHealthy returns the service's health status, probing if the cached
// entry is missing or older than the TTL. Entries are never deleted; they
// are overwritten by each completed probe.
func (c *Cache) IsHealthy(route *registry.Route) bool {
	if entry, ok := c.lookup(route.Name()); ok && !c.stale(entry) {
		return entry.Healthy
	}

	healthy, _, _ := c.group.Do(route.Name(), func() (interface{}, error) {
		// A coalesced caller may arrive just after the winner stored its
		// result; the freshness re-check keeps it from probing again.
		if entry, ok := c.lookup(route.Name()); ok && !c.stale(entry) {
			return entry.Healthy, nil
		}

		result := c.probe.Check(route)
		c.store(route.Name(), result)
		return result, nil
	})

	return healthy.(bool)
}

// Status returns the cached entry without triggering a probe.
func (c *Cache) Status(service string) (Entry, bool) {
	return c.lookup(service)
}

func (c *Cache) lookup(service string) (Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.entries[service]
	return entry, ok
}

func (c *Cache) stale(entry Entry) bool {
	return time.Since(entry.CheckedAt) >= c.ttl
}

func (c *Cache) store(service string, healthy bool) {
	c.mutex.Lock()
	previous, existed := c.entries[service]
	c.entries[service] = Entry{Healthy: healthy, CheckedAt: time.Now()}
	c.mutex.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveProbe(service, healthy)
	}

	if existed && previous.Healthy == healthy {
		return
	}

	if healthy {
		c.logger.Info("service is healthy", slog.String("service", service))
	} else {
		c.logger.Warn("service is unhealthy", slog.String("service", service))
	}
}
