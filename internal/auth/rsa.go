// ABOUTME: Textbook RSA signature verification via public-key decrypt
// ABOUTME: PKCS#1 v1.5 type-1 padding recovery, byte-compare against the nonce hex

package auth

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"math/big"
)

var errBadSignature = errors.New("signature does not verify")

// verifyPublicKey checks whether sig, decrypted under the PEM-encoded RSA
// public key with PKCS#1 v1.5 padding, recovers exactly the nonce's
// canonical hex text. Clients sign by raw private-key encryption of that
// text, so verification is decrypt-and-compare rather than a standard
// hash-and-verify scheme. The padding and comparison semantics are fixed by
// the deployed client population.
func verifyPublicKey(keyPEM string, sig []byte, nonceHex string) bool {
	pub, err := parsePublicKeyPEM(keyPEM)
	if err != nil {
		return false
	}
	plaintext, err := publicDecryptPKCS1v15(pub, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(plaintext, []byte(nonceHex))
}

func parsePublicKeyPEM(keyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}

	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return pub, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// publicDecryptPKCS1v15 performs the RSA public-key operation on sig and
// strips PKCS#1 v1.5 type-1 padding (0x00 0x01 0xFF... 0x00 payload),
// returning the recovered payload.
func publicDecryptPKCS1v15(pub *rsa.PublicKey, sig []byte) ([]byte, error) {
	k := pub.Size()
	if len(sig) != k {
		return nil, errBadSignature
	}

	c := new(big.Int).SetBytes(sig)
	if c.Cmp(pub.N) >= 0 {
		return nil, errBadSignature
	}

	e := big.NewInt(int64(pub.E))
	em := new(big.Int).Exp(c, e, pub.N).FillBytes(make([]byte, k))

	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, errBadSignature
	}

	// Skip the 0xFF padding; it must run for at least 8 bytes and end with
	// a single 0x00 separator.
	sep := bytes.IndexByte(em[2:], 0x00)
	if sep < 8 {
		return nil, errBadSignature
	}
	for _, b := range em[2 : 2+sep] {
		if b != 0xFF {
			return nil, errBadSignature
		}
	}

	return em[2+sep+1:], nil
}
