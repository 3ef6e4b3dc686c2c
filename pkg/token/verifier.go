package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpired       = errors.New("token expired")
	ErrUnexpectedAlg = errors.New("unexpected signing algorithm")
)

// Verifier checks token signatures against a configured Ed25519 public key.
//
// Parsing PEM key material on every request is wasteful, so the parsed key is
// cached keyed by a digest of the raw material. Swapping the key material via
// SetKeyMaterial invalidates the old entry naturally (different digest).
type Verifier struct {
	mu     sync.RWMutex
	keyPEM []byte
	keys   *cache.Cache
}

// NewVerifier creates a Verifier for the given PEM-encoded Ed25519 public key.
func NewVerifier(publicKeyPEM []byte) *Verifier {
	return &Verifier{
		keyPEM: publicKeyPEM,
		keys:   cache.New(cache.NoExpiration, 0),
	}
}

// SetKeyMaterial replaces the configured public key. The previously cached
// parsed key is dropped so stale material can never verify a token.
func (v *Verifier) SetKeyMaterial(publicKeyPEM []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys.Flush()
	v.keyPEM = publicKeyPEM
}

// publicKey returns the parsed Ed25519 key, parsing and caching on first use.
func (v *Verifier) publicKey() (ed25519.PublicKey, error) {
	v.mu.RLock()
	keyPEM := v.keyPEM
	v.mu.RUnlock()

	sum := sha256.Sum256(keyPEM)
	digest := hex.EncodeToString(sum[:])
	if cached, found := v.keys.Get(digest); found {
		return cached.(ed25519.PublicKey), nil
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in key material")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key material is not an Ed25519 key")
	}

	v.keys.Set(digest, key, cache.NoExpiration)
	return key, nil
}

// Verify checks the token signature and expiry and returns the typed claims.
//
// Only EdDSA-signed tokens are accepted. A token asserting any other
// algorithm fails closed with ErrUnexpectedAlg before the key is touched.
// Expiry is checked with zero grace; use Claims.IsExpired for buffered
// checks on already-verified payloads.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrUnexpectedAlg
		}
		return v.publicKey()
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnexpectedAlg):
			return nil, ErrUnexpectedAlg
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrInvalidToken
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc)
}

// DecodeUnsafe extracts claims WITHOUT verifying the signature.
//
// Only call this on tokens whose provenance is already trusted, e.g. a token
// the refresh boundary just handed back over an authenticated channel or one
// read from a server-controlled, script-inaccessible cookie. Never feed it
// tokens originating from user-controlled storage or input. Returns nil on
// malformed input.
func DecodeUnsafe(tokenStr string) *Claims {
	if tokenStr == "" {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	claims, err := claimsFromMap(mc)
	if err != nil {
		return nil
	}
	return claims
}
