package registry

import (
	"net/http/httputil"
	"net/url"
	"strings"
)

// Route represents one backend service: its base URL, the path prefixes it
// owns, and the path used for health probing. Routes are immutable after
// construction and safe for unsynchronized concurrent reads.
type Route struct {
	name         string
	baseURL      *url.URL
	pathPrefixes []string
	healthPath   string
	proxy        *httputil.ReverseProxy
}

// NewRoute creates a route for a single logical backend. The reverse proxy
// forwards to baseURL + the original request path.
func NewRoute(name, baseURL string, pathPrefixes []string, healthPath string) (*Route, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return &Route{
		name:         name,
		baseURL:      u,
		pathPrefixes: append([]string(nil), pathPrefixes...),
		healthPath:   healthPath,
		proxy:        httputil.NewSingleHostReverseProxy(u),
	}, nil
}

// Name returns the unique service name.
func (r *Route) Name() string {
	return r.name
}

// BaseURL returns the backend base URL.
func (r *Route) BaseURL() *url.URL {
	return r.baseURL
}

// PathPrefixes returns the path prefixes this service owns, in declaration order.
func (r *Route) PathPrefixes() []string {
	return r.pathPrefixes
}

// HealthPath returns the relative path probed for liveness.
func (r *Route) HealthPath() string {
	return r.healthPath
}

// HealthURL returns the absolute URL of the backend's health endpoint.
func (r *Route) HealthURL() *url.URL {
	return r.baseURL.ResolveReference(&url.URL{Path: r.healthPath})
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
func (r *Route) ReverseProxy() *httputil.ReverseProxy {
	return r.proxy
}

// OwnsPath reports whether any of the route's prefixes is a literal prefix
// of the request path. This is plain string matching, not pattern matching.
func (r *Route) OwnsPath(path string) bool {
	for _, prefix := range r.pathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
