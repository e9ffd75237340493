// Package registry holds the static service table and resolves inbound
// request paths to backend services by literal prefix matching.
//
// Resolution order is the declaration order of the service table:
//
//	route, ok := reg.MatchPath("/events/42")
//	if ok {
//	    route.ReverseProxy().ServeHTTP(w, r)
//	}
package registry
