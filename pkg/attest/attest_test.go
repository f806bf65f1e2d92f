package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sealed(t *testing.T, prev string) deed.Record {
	t.Helper()
	d, err := deed.NewDraft(deed.Intent{
		ActorID:  "did:example:alice",
		Category: deed.CategorySignedTrial,
	}, testNow)
	require.NoError(t, err)
	r, err := deed.New(d, prev)
	require.NoError(t, err)
	return r
}

func newAttester(t *testing.T) *Attester {
	t.Helper()
	ks, err := NewKeySet()
	require.NoError(t, err)
	return NewAttester(ks, "lab.example").WithClock(func() time.Time { return testNow })
}

func TestAttest_VerifyRoundTrip(t *testing.T) {
	a := newAttester(t)
	r := sealed(t, deed.GenesisHash)

	tok, err := a.Attest(r)
	require.NoError(t, err)

	claims, err := a.Verify(tok, r)
	require.NoError(t, err)
	assert.Equal(t, r.ID, claims.Subject)
	assert.Equal(t, r.SelfHash, claims.DeedHash)
	assert.Equal(t, deed.CategorySignedTrial, claims.Category)
	assert.Equal(t, "lab.example", claims.Issuer)
}

func TestVerify_RejectsOtherRecordAndTamper(t *testing.T) {
	a := newAttester(t)
	r := sealed(t, deed.GenesisHash)
	other := sealed(t, r.SelfHash)
	tok, err := a.Attest(r)
	require.NoError(t, err)

	_, err = a.Verify(tok, other)
	require.ErrorIs(t, err, ErrMismatch)

	changed := r.Clone()
	changed.SelfHash = other.SelfHash
	_, err = a.Verify(tok, changed)
	require.ErrorIs(t, err, ErrMismatch)

	_, err = a.Verify(tok[:len(tok)-4]+"AAAA", r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsUnknownKeyAndIssuer(t *testing.T) {
	a := newAttester(t)
	r := sealed(t, deed.GenesisHash)

	stranger := newAttester(t)
	tok, err := stranger.Attest(r)
	require.NoError(t, err)
	_, err = a.Verify(tok, r)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewAttester(a.keys, "someone.else")
	tok, err = other.Attest(r)
	require.NoError(t, err)
	_, err = a.Verify(tok, r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	a := newAttester(t)
	r := sealed(t, deed.GenesisHash)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "lab.example", Subject: r.ID},
		DeedHash:         r.SelfHash,
	})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.Verify(signed, r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestKeySet_RotationKeepsOldTokensValid(t *testing.T) {
	a := newAttester(t)
	r := sealed(t, deed.GenesisHash)
	tok, err := a.Attest(r)
	require.NoError(t, err)

	require.NoError(t, a.keys.Rotate())
	_, err = a.Verify(tok, r)
	require.NoError(t, err)
	assert.Len(t, a.keys.PublicKeys(), 2)
}

func TestVerifyOnlyKeySet(t *testing.T) {
	signer := newAttester(t)
	r := sealed(t, deed.GenesisHash)
	tok, err := signer.Attest(r)
	require.NoError(t, err)

	verifier := NewAttester(NewVerifyOnlyKeySet(signer.keys.PublicKeys()), "lab.example")
	_, err = verifier.Verify(tok, r)
	require.NoError(t, err)
	_, err = verifier.Attest(r)
	require.Error(t, err)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	untrusted := NewAttester(NewVerifyOnlyKeySet(map[string]ed25519.PublicKey{"key-other": pub}), "lab.example")
	_, err = untrusted.Verify(tok, r)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifiedIDs(t *testing.T) {
	a := newAttester(t)
	r1 := sealed(t, deed.GenesisHash)
	r2 := sealed(t, r1.SelfHash)
	r3 := sealed(t, r2.SelfHash)

	t1, err := a.Attest(r1)
	require.NoError(t, err)
	t3, err := a.Attest(r3)
	require.NoError(t, err)

	tampered := r3.Clone()
	tampered.SelfHash = r2.SelfHash

	ids := a.VerifiedIDs([]string{t1, t3, "not-a-token"}, []deed.Record{r1, r2, tampered})
	assert.Equal(t, map[string]bool{r1.ID: true}, ids)
}

func TestNewKeySetWithKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ks := NewKeySetWithKey("lab-2026", priv)
	a := NewAttester(ks, "lab.example")
	r := sealed(t, deed.GenesisHash)

	tok, err := a.Attest(r)
	require.NoError(t, err)
	verifier := NewAttester(NewVerifyOnlyKeySet(ks.PublicKeys()), "lab.example")
	_, err = verifier.Verify(tok, r)
	require.NoError(t, err)
	assert.Contains(t, ks.PublicKeys(), "lab-2026")
}
