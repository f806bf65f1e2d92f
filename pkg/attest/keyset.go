package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet holds the active signing key and every key still trusted for
// verification, addressed by kid.
type KeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]ed25519.PrivateKey
	trusted    map[string]ed25519.PublicKey
}

// NewKeySet generates an initial key.
func NewKeySet() (*KeySet, error) {
	ks := &KeySet{
		keys:    make(map[string]ed25519.PrivateKey),
		trusted: make(map[string]ed25519.PublicKey),
	}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// NewVerifyOnlyKeySet trusts the given public keys and cannot sign.
func NewVerifyOnlyKeySet(trusted map[string]ed25519.PublicKey) *KeySet {
	ks := &KeySet{
		keys:    make(map[string]ed25519.PrivateKey),
		trusted: make(map[string]ed25519.PublicKey, len(trusted)),
	}
	for kid, pub := range trusted {
		ks.trusted[kid] = pub
	}
	return ks
}

// NewKeySetWithKey signs with priv under kid.
func NewKeySetWithKey(kid string, priv ed25519.PrivateKey) *KeySet {
	pub, _ := priv.Public().(ed25519.PublicKey)
	return &KeySet{
		currentKID: kid,
		keys:       map[string]ed25519.PrivateKey{kid: priv},
		trusted:    map[string]ed25519.PublicKey{kid: pub},
	}
}

// Rotate makes a fresh key current. Older keys keep verifying.
func (ks *KeySet) Rotate() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	for ks.keys[kid] != nil {
		kid += "x"
	}
	ks.keys[kid] = priv
	ks.trusted[kid] = pub
	ks.currentKID = kid
	return nil
}

// PublicKeys returns a copy of the trusted keys.
func (ks *KeySet) PublicKeys() map[string]ed25519.PublicKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make(map[string]ed25519.PublicKey, len(ks.trusted))
	for kid, pub := range ks.trusted {
		out[kid] = pub
	}
	return out
}

func (ks *KeySet) sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	kid := ks.currentKID
	key := ks.keys[kid]
	ks.mu.RUnlock()
	if key == nil {
		return "", fmt.Errorf("attest: no active signing key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *KeySet) keyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		pub, exists := ks.trusted[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return pub, nil
	}
}
