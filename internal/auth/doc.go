// Package auth provides authentication and authorization for perimeter.
//
// # Authentication Methods
//
// Two login flows issue bearer tokens:
//
//   - Signature challenge: the client pre-generates a timestamped nonce (the
//     future session id), signs its canonical hex text with a registered RSA
//     private key and submits {usr, oid, sig}. Verification is textbook RSA
//     decrypt-and-compare under PKCS#1 v1.5 padding, tried against the
//     account's eligible keys in order. The nonce is single-use: the session
//     insert's uniqueness constraint is the authoritative replay gate.
//
//   - One-time password: a 6-digit code derived from hash(secret || counter)
//     with RFC 4226 dynamic truncation, where counter advances every 30
//     seconds. The derivation is deliberately a plain digest rather than
//     HMAC, for compatibility with the system's own enrollment.
//
// Both flows persist a Session record and return a JWT whose claims
// reference it; the token's expiry always equals the session's.
//
// # Authorization
//
// Guard re-validates the bearer token on every protected request: decode,
// then concurrent session+account fetch, then state checks. A disabled
// session is indistinguishable from a missing one. The resolved Identity is
// exposed via WithIdentity/FromContext.
//
// # Failure Semantics
//
// Failures map to bare HTTP status codes with empty bodies; the taxonomy in
// errors.go keeps the flows' distinct failure kinds (bad request, not found,
// forbidden, unauthorized, conflict, internal) even where the wire coarsens
// them.
package auth
