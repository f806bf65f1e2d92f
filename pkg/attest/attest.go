// Package attest signs and verifies third-party attestations of ledger
// records. An attestation is an EdDSA JWT whose subject is the record id and
// whose deed_hash claim is the record's self hash, so it cannot be moved to
// another record or survive a change to the attested one.
package attest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

var (
	ErrInvalidToken = errors.New("attest: invalid attestation")
	ErrMismatch     = errors.New("attest: attestation does not match record")
)

// Claims are the attestation token claims.
type Claims struct {
	jwt.RegisteredClaims
	DeedHash string        `json:"deed_hash"`
	Category deed.Category `json:"category,omitempty"`
}

// Attester issues and checks attestations for one issuer.
type Attester struct {
	keys   *KeySet
	issuer string
	clock  func() time.Time
	logger *slog.Logger
}

func NewAttester(keys *KeySet, issuer string) *Attester {
	return &Attester{
		keys:   keys,
		issuer: issuer,
		clock:  time.Now,
		logger: slog.Default().With("component", "attest"),
	}
}

// WithClock overrides clock for testing.
func (a *Attester) WithClock(clock func() time.Time) *Attester {
	a.clock = clock
	return a
}

// Attest signs an attestation for r.
func (a *Attester) Attest(r deed.Record) (string, error) {
	if r.ID == "" || r.SelfHash == "" {
		return "", fmt.Errorf("%w: record is not sealed", ErrInvalidToken)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			Subject:  r.ID,
			IssuedAt: jwt.NewNumericDate(a.clock().UTC()),
		},
		DeedHash: r.SelfHash,
		Category: r.Category,
	}
	return a.keys.sign(claims)
}

// Parse validates the token signature and issuer and returns its claims.
func (a *Attester) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, a.keys.keyFunc(),
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks that token attests exactly r.
func (a *Attester) Verify(token string, r deed.Record) (*Claims, error) {
	claims, err := a.Parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject != r.ID {
		return nil, fmt.Errorf("%w: subject %s, record %s", ErrMismatch, claims.Subject, r.ID)
	}
	if claims.DeedHash != r.SelfHash {
		return nil, fmt.Errorf("%w: record %s hash changed", ErrMismatch, r.ID)
	}
	return claims, nil
}

// VerifiedIDs returns the ids of records in records that at least one token
// validly attests. Invalid tokens are logged and ignored.
func (a *Attester) VerifiedIDs(tokens []string, records []deed.Record) map[string]bool {
	byID := make(map[string]deed.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make(map[string]bool)
	for _, tok := range tokens {
		claims, err := a.Parse(tok)
		if err != nil {
			a.logger.Warn("ignoring attestation", "error", err)
			continue
		}
		r, ok := byID[claims.Subject]
		if !ok {
			continue
		}
		if _, err := a.Verify(tok, r); err != nil {
			a.logger.Warn("ignoring attestation", "record_id", r.ID, "error", err)
			continue
		}
		out[r.ID] = true
	}
	return out
}
