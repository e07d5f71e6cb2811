// Package mock provides an in-process API server that behaves like the
// remote backend: it issues short-lived RS256 access tokens on login, signup
// and refresh, tracks the refresh session in a cookie, and protects every
// other /api path with bearer authentication.
//
// Tests use it to drive the request pipeline end to end, to expire every
// outstanding token at once and to count renewal calls.
package mock
