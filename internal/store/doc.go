// Package store provides persistence for perimeter accounts and sessions.
//
// # Entities
//
// Accounts carry an ordered sequence of RSA public keys and an optional
// one-time password secret. They are created by operator tooling and are
// read-only from the authentication core's perspective.
//
// Sessions back issued bearer tokens. A session id doubles as the
// signature-flow nonce; the PRIMARY KEY on sessions.id is the enforcement
// point for nonce single-use. InsertSession returns ErrDuplicateSession on
// a duplicate id, and the signature verifier treats that as the
// authoritative "nonce already used" signal.
//
// # Implementations
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL
// mode, automatic schema creation). MockStore is an in-memory double for
// tests.
//
// The core never caches accounts or sessions across requests; every
// operation re-reads current state so that revocation takes effect
// immediately.
package store
