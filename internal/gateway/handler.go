package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatewaylabs/api-gateway/internal/healthcache"
	"github.com/gatewaylabs/api-gateway/internal/registry"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusUnknown   = "unknown"
	statusDegraded  = "degraded"
)

// Handler serves the gateway's own endpoints: the aggregate health report
// and the service listing.
type Handler struct {
	logger   *slog.Logger
	registry *registry.Registry
	health   *healthcache.Cache
	version  string
}

func NewHandler(logger *slog.Logger, reg *registry.Registry, health *healthcache.Cache, version string) *Handler {
	return &Handler{
		logger:   logger,
		registry: reg,
		health:   health,
		version:  version,
	}
}

// Health reports aggregate gateway health: 200 when every known service is
// healthy, 503 otherwise. Lookups go through the health cache, so a burst
// of health requests costs at most one probe per service per TTL.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string, len(h.registry.Routes()))
	overall := statusHealthy

	for _, route := range h.registry.Routes() {
		if h.health.IsHealthy(route) {
			services[route.Name()] = statusHealthy
		} else {
			services[route.Name()] = statusUnhealthy
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall != statusHealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"gateway":   statusHealthy,
		"services":  services,
		"overall":   overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type serviceEntry struct {
	Name    string   `json:"name"`
	BaseURL string   `json:"baseUrl"`
	Paths   []string `json:"paths"`
	Status  string   `json:"status"`
}

// Services lists the configured routes with their last known health status.
// It reads the cache without forcing probes: a listing endpoint must not
// fan out health checks across every backend.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	routes := h.registry.Routes()
	services := make([]serviceEntry, 0, len(routes))

	for _, route := range routes {
		status := statusUnknown
		if entry, ok := h.health.Status(route.Name()); ok {
			if entry.Healthy {
				status = statusHealthy
			} else {
				status = statusUnhealthy
			}
		}

		services = append(services, serviceEntry{
			Name:    route.Name(),
			BaseURL: route.BaseURL().String(),
			Paths:   route.PathPrefixes(),
			Status:  status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"gateway": map[string]string{
			"version":   h.version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
