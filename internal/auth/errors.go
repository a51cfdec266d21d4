// ABOUTME: Error taxonomy for the authentication core
// ABOUTME: Sentinel errors mapped to bare HTTP status codes, no response bodies

package auth

import (
	"errors"
	"net/http"
)

// Verification failures. Only a status code ever reaches the client;
// responses carry no body so callers cannot learn which gate failed.
var (
	// ErrBadRequest covers malformed client input: unparsable nonce,
	// bad transport encoding, stale or future-dated nonce.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound means the account is absent (signature flow only).
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the account or its OTP enrollment is absent in the
	// OTP flow. Deliberately not ErrNotFound: the OTP path does not
	// distinguish unknown usernames from unenrolled ones.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized means a credential was presented but did not verify.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict means the nonce was already consumed.
	ErrConflict = errors.New("nonce already used")

	// ErrInternal covers repository failures, key material defects and
	// invariant violations such as a mismatched inserted id.
	ErrInternal = errors.New("internal error")
)

// StatusFor maps a verification error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
