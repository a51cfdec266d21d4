// ABOUTME: Authentication service: signature challenge and OTP verification flows
// ABOUTME: Each flow is a sequence of hard gates; the first failure aborts with no side effects

package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/perimeterhq/perimeter/internal/config"
	"github.com/perimeterhq/perimeter/internal/nonce"
	"github.com/perimeterhq/perimeter/internal/store"
	"github.com/perimeterhq/perimeter/internal/token"
)

// Service implements the two authentication flows. It holds no mutable
// state; every request re-reads accounts and sessions from the store.
type Service struct {
	store       store.Store
	codec       *token.Codec
	nonceWindow time.Duration
	otpHash     HashFunc
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService builds the authentication service from configuration.
func NewService(st store.Store, codec *token.Codec, cfg config.AuthConfig, logger *slog.Logger) *Service {
	return &Service{
		store:       st,
		codec:       codec,
		nonceWindow: cfg.Signature.NonceWindow,
		otpHash:     OTPHash(cfg.OTP.HashAlgorithm),
		logger:      logger.With("component", "auth"),
		now:         time.Now,
	}
}

// VerifySignature runs the nonce-based signature challenge flow and returns
// a signed bearer token on success.
//
// The client pre-generates the nonce (the future session id), signs its
// canonical hex text with a registered private key and submits
// {username, nonce hex, base64 signature}.
func (s *Service) VerifySignature(ctx context.Context, username, nonceHex, sigB64 string) (string, error) {
	id, err := nonce.Parse(nonceHex)
	if err != nil {
		return "", fmt.Errorf("%w: parsing nonce", ErrBadRequest)
	}

	now := s.now()
	issued := id.Timestamp()
	// Nonce must not be from the future nor older than the validity window.
	if issued.After(now) || now.After(issued.Add(s.nonceWindow)) {
		return "", fmt.Errorf("%w: nonce outside validity window", ErrBadRequest)
	}

	account, err := s.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: account lookup: %v", ErrInternal, err)
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return "", fmt.Errorf("%w: decoding signature", ErrBadRequest)
	}

	matched := s.matchPublicKey(account, sig, id.Hex(), now.Unix())
	if matched == nil {
		return "", ErrUnauthorized
	}

	// Fast-path replay check. Advisory only: the insert below is the
	// authoritative gate, backed by the storage uniqueness constraint.
	switch _, err := s.store.GetSessionByID(ctx, id.Hex()); {
	case err == nil:
		return "", ErrConflict
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("%w: replay check: %v", ErrInternal, err)
	}

	claims := s.codec.Issue(id.Hex(), account.ID, matched.ID, issued)

	insertedID, err := s.store.InsertSession(ctx, &store.Session{
		ID:        id.Hex(),
		AccountID: account.ID,
		Expiry:    claims.Expiry,
		Issuer:    store.IssuerPublicKey,
		KeyID:     matched.ID,
		State:     store.StateNormal,
	})
	if errors.Is(err, store.ErrDuplicateSession) {
		return "", ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("%w: inserting session: %v", ErrInternal, err)
	}
	if insertedID != id.Hex() {
		return "", fmt.Errorf("%w: inserted session id %q does not match nonce", ErrInternal, insertedID)
	}

	signed, err := s.codec.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info("signature authentication succeeded",
		"account", account.ID, "key", matched.ID, "session", id.Hex())
	return signed, nil
}

// matchPublicKey tries the account's keys in their registered order and
// returns the first eligible key whose decrypt matches the nonce hex.
func (s *Service) matchPublicKey(account *store.Account, sig []byte, nonceHex string, now int64) *store.PublicKey {
	for i := range account.PublicKeys {
		key := &account.PublicKeys[i]
		if !key.Eligible(now) {
			continue
		}
		if verifyPublicKey(key.Key, sig, nonceHex) {
			return key
		}
	}
	return nil
}

// VerifyOTP runs the one-time password flow and returns a signed bearer
// token on success. passkey is an opaque caller-supplied payload recorded on
// the resulting session; it may be empty.
func (s *Service) VerifyOTP(ctx context.Context, username, otp, passkey string) (string, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		// Unknown username and missing enrollment are indistinguishable here.
		return "", ErrForbidden
	}
	if err != nil {
		return "", fmt.Errorf("%w: account lookup: %v", ErrInternal, err)
	}
	if account.OTPSecret == nil {
		return "", ErrForbidden
	}

	secret, err := base64.StdEncoding.DecodeString(account.OTPSecret.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: decoding enrolled secret: %v", ErrInternal, err)
	}

	expected := GenerateCode(secret, s.now(), s.otpHash)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(otp)) != 1 {
		return "", ErrUnauthorized
	}

	id := nonce.NewAt(s.now())
	claims := s.codec.Issue(id.Hex(), account.ID, "", id.Timestamp())

	insertedID, err := s.store.InsertSession(ctx, &store.Session{
		ID:        id.Hex(),
		AccountID: account.ID,
		Expiry:    claims.Expiry,
		Issuer:    store.IssuerOTP,
		State:     store.StatePasskey,
		Passkey:   passkey,
	})
	if err != nil {
		// Fresh ids cannot legitimately collide; any failure is internal.
		return "", fmt.Errorf("%w: inserting session: %v", ErrInternal, err)
	}
	if insertedID != id.Hex() {
		return "", fmt.Errorf("%w: inserted session id %q does not match generated id", ErrInternal, insertedID)
	}

	signed, err := s.codec.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info("otp authentication succeeded", "account", account.ID, "session", id.Hex())
	return signed, nil
}
