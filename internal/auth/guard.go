// ABOUTME: Authorization guard re-validating bearer tokens on every protected request
// ABOUTME: Decodes the JWT, then fetches session and account concurrently before granting

package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/perimeterhq/perimeter/internal/nonce"
	"github.com/perimeterhq/perimeter/internal/store"
	"github.com/perimeterhq/perimeter/internal/token"
)

// Guard intercepts protected requests, validates the presented bearer token
// and cross-checks it against the live session and account records. Nothing
// is cached between requests: a session disabled a moment ago is rejected on
// the very next request.
type Guard struct {
	store  store.Store
	codec  *token.Codec
	logger *slog.Logger
}

// NewGuard creates an authorization guard.
func NewGuard(st store.Store, codec *token.Codec, logger *slog.Logger) *Guard {
	return &Guard{
		store:  st,
		codec:  codec,
		logger: logger.With("component", "guard"),
	}
}

// Middleware wraps an HTTP handler with bearer token authorization. On
// success the resolved Identity is attached to the request context;
// failures are answered with a bare status code.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.Authorize(r)
		if err != nil {
			w.WriteHeader(StatusFor(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Authorize validates the request's bearer credential and resolves the
// owning session and account.
func (g *Guard) Authorize(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("%w: missing authorization header", ErrBadRequest)
	}
	// The header value is the token itself; a "Bearer " prefix is tolerated.
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims, err := g.codec.Decode(tokenString)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// A token we signed must carry a parsable session id and an account id.
	// A violation means the signer and guard disagree on claim shape - a
	// defect, not a client error.
	if _, err := nonce.Parse(claims.TokenID); err != nil {
		return nil, fmt.Errorf("%w: malformed token id claim", ErrInternal)
	}
	if claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id claim", ErrInternal)
	}

	// The two lookups are independent; issue them concurrently and wait for
	// both. Either failing short-circuits the join.
	var session *store.Session
	var account *store.Account

	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		var err error
		session, err = g.store.GetSession(ctx, claims.TokenID, claims.AccountID, claims.Expiry)
		return err
	})
	group.Go(func() error {
		var err error
		account, err = g.store.GetAccount(ctx, claims.AccountID)
		return err
	})

	switch err := group.Wait(); {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("%w: repository lookup: %v", ErrInternal, err)
	}

	// A disabled session is treated exactly like a missing one.
	if session.Disabled() {
		return nil, ErrUnauthorized
	}

	return &Identity{Session: session, Account: account}, nil
}
