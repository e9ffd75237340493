package registry

import "errors"

// ErrUnknownService is returned by Lookup for a name no route declares.
var ErrUnknownService = errors.New("unknown service")

// Registry is the static service table, loaded once at startup. It keeps
// routes in declaration order because path resolution is first-declared-wins.
type Registry struct {
	routes []*Route
	byName map[string]*Route
}

func NewRegistry(routes []*Route) *Registry {
	byName := make(map[string]*Route, len(routes))
	for _, route := range routes {
		byName[route.Name()] = route
	}

	return &Registry{
		routes: routes,
		byName: byName,
	}
}

// Lookup resolves a service by name.
func (reg *Registry) Lookup(name string) (*Route, error) {
	route, ok := reg.byName[name]
	if !ok {
		return nil, ErrUnknownService
	}
	return route, nil
}

// MatchPath finds the service owning the request path. Services are scanned
// in declaration order and the first prefix match wins; overlapping prefixes
// across services resolve deterministically to the earlier declaration.
func (reg *Registry) MatchPath(path string) (*Route, bool) {
	for _, route := range reg.routes {
		if route.OwnsPath(path) {
			return route, true
		}
	}
	return nil, false
}

// Routes returns all routes in declaration order.
func (reg *Registry) Routes() []*Route {
	return reg.routes
}

// Names returns all service names in declaration order.
func (reg *Registry) Names() []string {
	names := make([]string, len(reg.routes))
	for i, route := range reg.routes {
		names[i] = route.Name()
	}
	return names
}
