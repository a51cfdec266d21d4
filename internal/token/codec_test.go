// ABOUTME: Unit tests for the JWT codec
// ABOUTME: Covers round-trips, tampering, expiry and key/algorithm mismatches

package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perimeterhq/perimeter/internal/config"
	"github.com/perimeterhq/perimeter/internal/keys"
)

func newTestCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	material, err := keys.New(config.JWTConfig{Secret: secret, Duration: time.Hour})
	require.NoError(t, err)
	return NewCodec(material)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	issuedAt := time.Now()
	claims := codec.Issue("675f21efdbd4c628b5e9496a", "account-1", "key-1", issuedAt)

	assert.Equal(t, issuedAt.Unix(), claims.IssuedAt)
	assert.Equal(t, issuedAt.Add(time.Hour).Unix(), claims.Expiry)

	signed, err := codec.Sign(claims)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	decoded, err := codec.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, claims, *decoded)
}

func TestCodec_IssueWithoutPublicKey(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	claims := codec.Issue("675f21efdbd4c628b5e9496a", "account-1", "", time.Now())
	signed, err := codec.Sign(claims)
	require.NoError(t, err)

	decoded, err := codec.Decode(signed)
	require.NoError(t, err)
	assert.Empty(t, decoded.PublicKeyID)
}

func TestCodec_Decode_Tampered(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	signed, err := codec.Sign(codec.Issue("675f21efdbd4c628b5e9496a", "account-1", "", time.Now()))
	require.NoError(t, err)

	// Flip a character in the signature segment
	tampered := signed[:len(signed)-2] + "xx"
	_, err = codec.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Decode_Expired(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	// Issue far enough in the past that issuedAt + 1h is already over
	signed, err := codec.Sign(codec.Issue("675f21efdbd4c628b5e9496a", "account-1", "", time.Now().Add(-2*time.Hour)))
	require.NoError(t, err)

	_, err = codec.Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Decode_WrongKey(t *testing.T) {
	codec := newTestCodec(t, "test-secret")
	other := newTestCodec(t, "other-secret")

	signed, err := other.Sign(other.Issue("675f21efdbd4c628b5e9496a", "account-1", "", time.Now()))
	require.NoError(t, err)

	_, err = codec.Decode(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	for _, tok := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 512)} {
		_, err := codec.Decode(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestCodec_Decode_FailureIsUniform(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	expired, err := codec.Sign(codec.Issue("675f21efdbd4c628b5e9496a", "a", "", time.Now().Add(-2*time.Hour)))
	require.NoError(t, err)

	_, expiredErr := codec.Decode(expired)
	_, garbageErr := codec.Decode("garbage")

	// Callers must not be able to distinguish which check failed.
	assert.Equal(t, expiredErr, garbageErr)
}
