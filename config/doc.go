// Package config loads and validates the gateway configuration from a YAML
// file, environment variables, and built-in defaults.
//
// The service table (names, path prefixes, health paths) is fixed at deploy
// time. Routing is first-declared-wins: when two services declare
// overlapping path prefixes, the one listed earlier in the services list
// owns the request. Declaration order is therefore part of the
// configuration contract, not an implementation detail.
//
// Each service's base URL can be overridden with the environment variable
// named by its url_env field (e.g. EVENTS_SERVICE_URL); the url field is
// the fallback default.
package config
