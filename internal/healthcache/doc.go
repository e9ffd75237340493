// Package healthcache tracks backend health with TTL-bounded caching.
//
// A lookup inside the TTL is answered from memory. A stale lookup triggers
// one outbound probe; concurrent stale lookups for the same service are
// coalesced onto that single in-flight probe, so a burst of traffic against
// a stale entry cannot amplify into a health-check storm.
package healthcache
