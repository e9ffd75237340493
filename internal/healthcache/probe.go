package healthcache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatewaylabs/api-gateway/internal/registry"
)

// Probe performs the outbound health check against a service's health
// endpoint. Any transport error, timeout, or status outside the 2xx/3xx
// range marks the service unhealthy; probes never return an error.
type Probe struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewProbe(timeout time.Duration, logger *slog.Logger) *Probe {
	return &Probe{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Check issues a GET against the route's health URL. It runs on a detached
// context so an inbound request being cancelled cannot abort a probe whose
// result is shared with coalesced callers.
func (p *Probe) Check(route *registry.Route) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route.HealthURL().String(), nil)
	if err != nil {
		return false
	}

	res, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("health probe failed",
			slog.String("service", route.Name()),
			slog.String("error", err.Error()))
		return false
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	return res.StatusCode >= 200 && res.StatusCode < 400
}
