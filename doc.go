// Package authpipe is a client-side access layer for HTTP APIs protected by
// short-lived bearer tokens.
//
// A Client persists the access token, attaches it to every non-public call
// and renews it silently when the server answers 401. Renewal is single
// flight: however many calls fail at once, one refresh request is sent and
// every failed call is replayed exactly once with the token it produced. When
// renewal fails the session is ended and each call surfaces an error matching
// ErrUnauthorized.
//
// Example:
//
//	client, _ := authpipe.New(ctx, authpipe.DefaultOptions("https://api.example.com"))
//	_, _ = client.Login(ctx, "alice", "secret")
//	resp, err := client.Execute(ctx, "/api/orders", &authpipe.Request{Method: http.MethodGet})
//
// The building blocks live in auth/store (token persistence), auth/state
// (derived session), auth/refresh (single-flight renewal) and auth/transport
// (the http.RoundTripper and renewal protocol); they can be assembled
// directly when the Client does not fit.
package authpipe
