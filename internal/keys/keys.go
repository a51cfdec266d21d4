// ABOUTME: Signing/verification key material resolved once at startup
// ABOUTME: Supports RSA PEM, RSA DER and symmetric secret configurations

package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/perimeterhq/perimeter/internal/config"
)

// Key material errors. All of them are startup-fatal: the process must not
// serve traffic without resolvable key material.
var (
	ErrNoKeyMaterial    = errors.New("no jwt key material configured")
	ErrUnknownAlgorithm = errors.New("unknown jwt algorithm")
)

// algorithms is the closed set of accepted signing algorithm names.
var algorithms = map[string]bool{
	"HS256": true, "HS384": true, "HS512": true,
	"RS256": true, "RS384": true, "RS512": true,
	"ES256": true, "ES384": true,
	"PS256": true, "PS384": true, "PS512": true,
}

// Material is the immutable signer/verifier capability produced at startup.
// It is shared by every component that signs or validates tokens and is
// never mutated after New returns.
type Material struct {
	Method    jwt.SigningMethod
	SignKey   any
	VerifyKey any
	Duration  time.Duration
}

// New resolves key material from configuration. Preference order: RSA PEM
// key pair, RSA DER key pair, symmetric secret. When no algorithm is named
// the default follows the key family: HS256 for a secret, RS256 for RSA.
func New(cfg config.JWTConfig) (*Material, error) {
	m := &Material{Duration: cfg.Duration}

	switch {
	case cfg.RSAPEM.Private != "" && cfg.RSAPEM.Public != "":
		if err := m.loadRSAPEM(cfg.RSAPEM); err != nil {
			return nil, err
		}
	case cfg.RSADER.Private != "" && cfg.RSADER.Public != "":
		if err := m.loadRSADER(cfg.RSADER); err != nil {
			return nil, err
		}
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		m.SignKey = secret
		m.VerifyKey = secret
	default:
		return nil, ErrNoKeyMaterial
	}

	method, err := resolveMethod(cfg.Algorithm, m.SignKey)
	if err != nil {
		return nil, err
	}
	m.Method = method

	return m, nil
}

func resolveMethod(name string, signKey any) (jwt.SigningMethod, error) {
	if name == "" {
		if _, ok := signKey.([]byte); ok {
			return jwt.SigningMethodHS256, nil
		}
		return jwt.SigningMethodRS256, nil
	}

	if !algorithms[name] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}

	method := jwt.GetSigningMethod(name)
	if method == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return method, nil
}

func (m *Material) loadRSAPEM(pair config.KeyPair) error {
	privateBytes, err := os.ReadFile(pair.Private)
	if err != nil {
		return fmt.Errorf("reading rsa-pem private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateBytes)
	if err != nil {
		return fmt.Errorf("parsing rsa-pem private key: %w", err)
	}

	publicBytes, err := os.ReadFile(pair.Public)
	if err != nil {
		return fmt.Errorf("reading rsa-pem public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicBytes)
	if err != nil {
		return fmt.Errorf("parsing rsa-pem public key: %w", err)
	}

	m.SignKey = privateKey
	m.VerifyKey = publicKey
	return nil
}

func (m *Material) loadRSADER(pair config.KeyPair) error {
	privateBytes, err := os.ReadFile(pair.Private)
	if err != nil {
		return fmt.Errorf("reading rsa-der private key: %w", err)
	}
	privateKey, err := parseDERPrivateKey(privateBytes)
	if err != nil {
		return fmt.Errorf("parsing rsa-der private key: %w", err)
	}

	publicBytes, err := os.ReadFile(pair.Public)
	if err != nil {
		return fmt.Errorf("reading rsa-der public key: %w", err)
	}
	publicKey, err := parseDERPublicKey(publicBytes)
	if err != nil {
		return fmt.Errorf("parsing rsa-der public key: %w", err)
	}

	m.SignKey = privateKey
	m.VerifyKey = publicKey
	return nil
}

// parseDERPrivateKey accepts both PKCS#1 and PKCS#8 encodings.
func parseDERPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("der private key is not RSA")
	}
	return key, nil
}

// parseDERPublicKey accepts both PKIX and PKCS#1 encodings.
func parseDERPublicKey(der []byte) (*rsa.PublicKey, error) {
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("der public key is not RSA")
		}
		return key, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}
