package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// KeyPair holds the RSA signing keys. It is read-only after construction.
type KeyPair struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// Public returns the verification key.
func (k KeyPair) Public() *rsa.PublicKey { return k.public }

// LoadKeyPair parses a private and public key. Each value may be PEM text or
// base64 of either PEM text or raw DER (PKCS8/PKCS1 private, PKIX public).
func LoadKeyPair(privateKey, publicKey string) (KeyPair, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return KeyPair{}, shared.WrapError(shared.CodeInvalidKeyMaterial, fmt.Errorf("private key: %w", err))
	}
	pub, err := parsePublicKey(publicKey)
	if err != nil {
		return KeyPair{}, shared.WrapError(shared.CodeInvalidKeyMaterial, fmt.Errorf("public key: %w", err))
	}
	if !priv.PublicKey.Equal(pub) {
		return KeyPair{}, shared.WrapError(shared.CodeInvalidKeyMaterial, errors.New("public key does not match private key"))
	}
	return KeyPair{private: priv, public: pub}, nil
}

// NewKeyPair wraps an already parsed private key.
func NewKeyPair(priv *rsa.PrivateKey) KeyPair {
	return KeyPair{private: priv, public: &priv.PublicKey}
}

func parsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	der, err := decodeKey(raw, "PRIVATE KEY", "RSA PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an RSA key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(der)
}

func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	der, err := decodeKey(raw, "PUBLIC KEY", "RSA PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}

func decodeKey(raw string, blockTypes ...string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty key")
	}
	if !strings.HasPrefix(raw, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(stripWhitespace(raw))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		if !strings.HasPrefix(strings.TrimSpace(string(decoded)), "-----BEGIN") {
			return decoded, nil
		}
		raw = string(decoded)
	}
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	for _, t := range blockTypes {
		if block.Type == t {
			return block.Bytes, nil
		}
	}
	return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
