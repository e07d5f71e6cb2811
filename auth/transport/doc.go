// Package transport implements the http.RoundTripper every call to the remote
// API goes through.
//
// The RoundTripper attaches the persisted bearer token to private endpoints,
// leaves allow-listed public endpoints (login, signup, refresh, username
// check) untouched, and reacts to a 401 by asking the refresh coordinator for
// a new token and replaying the request exactly once.
//
// The package also ships the renewal client used by the coordinator and a
// persisted cookie jar that carries the ambient session credential the renewal
// endpoint authenticates with.
package transport
