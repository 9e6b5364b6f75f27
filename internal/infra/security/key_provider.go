package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrKeyNotFound indicates no verification key is registered under the requested kid.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider supplies the active signing key and the public keys tokens may be verified with.
type KeyProvider interface {
	SigningKey() (string, *rsa.PrivateKey, error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// StaticKeyProvider serves a fixed key set.
type StaticKeyProvider struct {
	signingKID string
	signingKey *rsa.PrivateKey
	keys       map[string]*rsa.PublicKey
}

// NewKeyProvider loads PEM keys from keyDir, or generates an in-memory key pair when keyDir is empty.
func NewKeyProvider(keyDir string, bits int) (*StaticKeyProvider, error) {
	if strings.TrimSpace(keyDir) == "" {
		return NewEphemeralKeyProvider(bits)
	}
	return NewDirectoryKeyProvider(keyDir)
}

// NewDirectoryKeyProvider reads every PEM file in keyDir. The file name without extension is the kid;
// the first private key in lexical file order signs.
func NewDirectoryKeyProvider(keyDir string) (*StaticKeyProvider, error) {
	entries, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	provider := &StaticKeyProvider{keys: make(map[string]*rsa.PublicKey)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		private, public, err := parseRSAKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}
		provider.keys[kid] = public
		if private != nil && provider.signingKey == nil {
			provider.signingKID = kid
			provider.signingKey = private
		}
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}
	return provider, nil
}

// NewEphemeralKeyProvider generates a key pair that lives only as long as the process.
func NewEphemeralKeyProvider(bits int) (*StaticKeyProvider, error) {
	if bits <= 0 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	kid := keyThumbprint(&key.PublicKey)
	return &StaticKeyProvider{
		signingKID: kid,
		signingKey: key,
		keys:       map[string]*rsa.PublicKey{kid: &key.PublicKey},
	}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
		return nil, nil, errors.New("private key is not RSA")
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
		return nil, nil, errors.New("public key is not RSA")
	}
	return nil, nil, errors.New("unsupported key encoding")
}

func keyThumbprint(key *rsa.PublicKey) string {
	sum := sha256.Sum256(key.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

// SigningKey returns the kid and private key used to sign new tokens.
func (p *StaticKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return "", nil, errors.New("signing key not configured")
	}
	return p.signingKID, p.signingKey, nil
}

// VerificationKey returns the public key registered under kid.
func (p *StaticKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// VerificationKeys returns a copy of every registered public key.
func (p *StaticKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	keys := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		keys[kid] = key
	}
	return keys
}
