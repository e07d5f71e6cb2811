// Package store holds the persisted access token of the current caller.
//
// A Store computes the absolute expiry of a token once, when it is saved, and
// writes token, expiry and role as one multi-key write to a pluggable Backend.
// Readers never trust partial state: a record missing any required key reads
// as absent. Validity checks fail closed, so an unreadable backend simply means
// "no valid token".
//
// Two backends ship with the package: an in-memory one for tests and
// short-lived processes, and a file backend that keeps a JSON snapshot at any
// viant/afs URL and survives process restarts.
package store
