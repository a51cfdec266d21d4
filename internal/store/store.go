// ABOUTME: Store interface and data types for perimeter persistence
// ABOUTME: Defines Account, PublicKey and Session plus the repository operations

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when inserting a session whose id already
// exists. It is the authoritative replay signal for the signature flow: the
// storage uniqueness constraint, not any preceding read, decides reuse.
var ErrDuplicateSession = errors.New("session already exists")

// KeyValidity constants for public key validity states
const (
	ValidityMaster    = "master"
	ValidityPermanent = "permanent"
	ValidityTemporary = "temporary"
	ValidityDisabled  = "disabled"
)

// Issuer constants recording which credential produced a session
const (
	IssuerOTP       = "otp"
	IssuerPublicKey = "public_key"
)

// Session state constants
const (
	StateNormal   = "normal"
	StatePasskey  = "passkey"
	StateDisabled = "disabled"
)

// Account is an authenticatable identity. Registration and key enrollment
// happen outside the request path; the verifiers only ever read accounts.
type Account struct {
	ID         string
	Username   string
	PublicKeys []PublicKey // ordered; verification tries them in sequence
	OTPSecret  *OTPSecret
}

// PublicKey is a registered RSA public key in PEM form.
type PublicKey struct {
	ID       string
	Key      string // PEM-encoded RSA public key
	Validity string // master | permanent | temporary | disabled
	// ValidityAt is the expiry timestamp for temporary keys and the
	// disabled-at timestamp for disabled keys; unused otherwise.
	ValidityAt int64
}

// Eligible reports whether the key may participate in signature
// verification at the given unix time. Disabled keys never validate;
// temporary keys stop validating once expired.
func (k *PublicKey) Eligible(now int64) bool {
	switch k.Validity {
	case ValidityMaster, ValidityPermanent:
		return true
	case ValidityTemporary:
		return now <= k.ValidityAt
	default:
		return false
	}
}

// OTPSecret is an enrolled one-time password secret.
type OTPSecret struct {
	Secret   string // base64-encoded shared secret
	IssuedAt int64
}

// Session is the persisted record backing an issued bearer token. Its id is
// the signature-flow nonce and is unique across all sessions ever created.
type Session struct {
	ID        string // 24-char nonce hex
	AccountID string
	Expiry    int64  // unix seconds, equals the token claims' expiry
	Issuer    string // otp | public_key
	KeyID     string // set when Issuer is public_key
	State     string // normal | passkey | disabled
	Passkey   string // opaque payload when State is passkey
	// DisabledAt is the revocation timestamp when State is disabled.
	DisabledAt int64
}

// Disabled reports whether the session has been revoked.
func (s *Session) Disabled() bool {
	return s.State == StateDisabled
}

// Store defines the repository operations used by the authentication core.
type Store interface {
	// GetAccountByUsername returns the account with the given username,
	// or ErrNotFound.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)

	// GetAccount returns the account with the given id, or ErrNotFound.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// GetSession returns the session matching id, owning account and exact
	// expiry, or ErrNotFound.
	GetSession(ctx context.Context, id, accountID string, expiry int64) (*Session, error)

	// GetSessionByID returns the session with the given id regardless of
	// owner or expiry, or ErrNotFound. Used as the replay fast path.
	GetSessionByID(ctx context.Context, id string) (*Session, error)

	// InsertSession atomically inserts a new session and returns its id.
	// A duplicate id fails with ErrDuplicateSession.
	InsertSession(ctx context.Context, session *Session) (string, error)

	// DisableSession transitions a session to the disabled state. The
	// transition is terminal: re-disabling succeeds without moving the
	// recorded revocation time. Returns ErrNotFound for unknown sessions.
	DisableSession(ctx context.Context, id string, at int64) error

	// Enrollment operations, used by operator tooling and tests only.
	CreateAccount(ctx context.Context, account *Account) error
	AddPublicKey(ctx context.Context, accountID string, key *PublicKey) error
	SetOTPSecret(ctx context.Context, accountID string, secret *OTPSecret) error

	Close() error
}
