// ABOUTME: One-time password derivation: hash of secret||counter with dynamic truncation
// ABOUTME: Deliberately a plain digest, not HMAC - matches the system's own OTP issuance

package auth

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

const (
	otpTimeStep = 30 // seconds per counter window
	otpDigits   = 6
)

// HashFunc constructs the digest used for OTP derivation.
type HashFunc func() hash.Hash

// OTPHash resolves a configured hash algorithm name, case-insensitively.
// Unknown names fall back to SHA-256, mirroring the issuance side.
func OTPHash(name string) HashFunc {
	switch strings.ToLower(name) {
	case "md5":
		return md5.New

	/* SHA-1 */
	case "sha1":
		return sha1.New

	/* SHA-2 family */
	case "sha224":
		return sha256.New224
	case "sha384":
		return sha512.New384
	case "sha512":
		return sha512.New

	/* SHA-3 family */
	case "sha3-224":
		return sha3.New224
	case "sha3-256":
		return sha3.New256
	case "sha3-384":
		return sha3.New384
	case "sha3-512":
		return sha3.New512

	default:
		return sha256.New
	}
}

// GenerateCode derives the 6-digit code for the given secret and time.
//
// The digest input is the raw secret followed by the 30-second counter as an
// 8-byte big-endian integer - a direct hash of the concatenation. This is
// not RFC 6238 TOTP and must not be "corrected" to HMAC: enrolled secrets
// were issued against exactly this derivation.
func GenerateCode(secret []byte, at time.Time, newHash HashFunc) string {
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(at.Unix()/otpTimeStep))

	h := newHash()
	h.Write(secret)
	h.Write(counter[:])
	digest := h.Sum(nil)

	return truncate(digest)
}

// truncate applies RFC 4226 §5.3 dynamic truncation to a digest.
func truncate(digest []byte) string {
	offset := int(digest[len(digest)-1] & 0x0F)
	// MD5 digests are only 16 bytes; the extraction window must stay in range.
	if offset+4 > len(digest) {
		offset = len(digest) - 4
	}

	code := (uint32(digest[offset])&0x7F)<<24 |
		uint32(digest[offset+1])<<16 |
		uint32(digest[offset+2])<<8 |
		uint32(digest[offset+3])

	return fmt.Sprintf("%0*d", otpDigits, code%1_000_000)
}
