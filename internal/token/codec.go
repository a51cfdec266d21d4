// ABOUTME: JWT claim construction, signing and validation for session tokens
// ABOUTME: Collapses every decode failure into a single ErrInvalidToken

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/perimeterhq/perimeter/internal/keys"
)

// Codec errors
var (
	// ErrInvalidToken covers every decode failure: bad signature, malformed
	// token, expired token, wrong algorithm. Callers must not learn which.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSigning indicates a key material defect. It should not occur after
	// startup validation and is treated as an internal failure.
	ErrSigning = errors.New("token signing failed")
)

// Claims is the payload embedded in a signed bearer token. It is built fresh
// for every signing operation and never persisted; the owning session record
// carries the same expiry.
type Claims struct {
	TokenID     string `json:"jti"`
	AccountID   string `json:"sub"`
	PublicKeyID string `json:"pub,omitempty"`
	IssuedAt    int64  `json:"iat"`
	Expiry      int64  `json:"exp"`
}

// GetExpirationTime implements jwt.Claims; the library uses it for its own
// expiry check during Decode.
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c Claims) GetIssuer() (string, error) { return "", nil }

func (c Claims) GetSubject() (string, error) { return c.AccountID, nil }

func (c Claims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// Codec signs and validates bearer tokens under fixed key material.
type Codec struct {
	material *keys.Material
}

// NewCodec creates a codec bound to the given key material.
func NewCodec(material *keys.Material) *Codec {
	return &Codec{material: material}
}

// Issue builds a claim set for a new session token. publicKeyID is empty for
// OTP-issued tokens. Expiry is issuedAt plus the configured token duration.
func (c *Codec) Issue(tokenID, accountID, publicKeyID string, issuedAt time.Time) Claims {
	return Claims{
		TokenID:     tokenID,
		AccountID:   accountID,
		PublicKeyID: publicKeyID,
		IssuedAt:    issuedAt.Unix(),
		Expiry:      issuedAt.Add(c.material.Duration).Unix(),
	}
}

// Sign produces the signed token string for the given claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(c.material.Method, claims)
	signed, err := tok.SignedString(c.material.SignKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// Decode validates a presented token string and returns its claims. Only the
// configured signing method is accepted. Any failure is ErrInvalidToken.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.material.VerifyKey, nil
	}, jwt.WithValidMethods([]string{c.material.Method.Alg()}))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
