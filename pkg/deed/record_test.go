package deed

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustDraft(t *testing.T, in Intent) Draft {
	t.Helper()
	d, err := NewDraft(in, fixedNow)
	require.NoError(t, err)
	return d
}

func TestNewDraft_NormalizesSets(t *testing.T) {
	d := mustDraft(t, Intent{
		ActorID:   "did:alice",
		TargetIDs: []string{"b", "a", "b"},
		Category:  CategoryEcologicalSustainability,
		Tags:      []string{"zz", "aa"},
		Evidence:  map[string]any{"z": 1, "a": map[string]any{"d": true, "c": nil}},
	})

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, fixedNow.Unix(), d.Timestamp)
	assert.Equal(t, []string{"a", "b"}, d.TargetIDs)
	assert.Equal(t, []string{"aa", "zz"}, d.Tags)
	assert.Equal(t, []string{}, d.EthicsFlags)
	assert.Equal(t, `{"a":{"c":null,"d":true},"z":1}`, string(d.Evidence))
}

func TestNewDraft_Rejects(t *testing.T) {
	_, err := NewDraft(Intent{Category: CategoryRecovery}, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidDraft))

	_, err = NewDraft(Intent{ActorID: "a"}, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidDraft))

	_, err = NewDraft(Intent{ActorID: "a", Category: "x", Evidence: []int{1, 2}}, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidDraft))
}

func TestNewDraft_NilEvidenceIsEmptyObject(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x"})
	assert.Equal(t, `{}`, string(d.Evidence))

	d = mustDraft(t, Intent{ActorID: "a", Category: "x", Evidence: json.RawMessage("null")})
	assert.Equal(t, `{}`, string(d.Evidence))
}

func TestNew_ComputesSelfHash(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: CategoryHomelessnessRelief})
	r, err := New(d, GenesisHash)
	require.NoError(t, err)

	assert.Equal(t, GenesisHash, r.PrevHash)
	h, err := Hash(r)
	require.NoError(t, err)
	assert.Equal(t, h, r.SelfHash)
	assert.Len(t, r.SelfHash, 64)
}

func TestNew_RejectsMalformedPrevHash(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x"})
	_, err := New(d, "genesis")
	assert.True(t, errors.Is(err, ErrInvalidDraft))
}

func TestHash_IgnoresSelfHashAndConstructionPath(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x", Evidence: map[string]any{"b": 2, "a": 1}})
	r1, err := New(d, GenesisHash)
	require.NoError(t, err)

	r2 := Record{
		HarmFlag:    r1.HarmFlag,
		EthicsFlags: nil,
		Evidence:    json.RawMessage(`{"a":1,"b":2}`),
		Tags:        nil,
		Category:    r1.Category,
		TargetIDs:   nil,
		ActorID:     r1.ActorID,
		SelfHash:    "bogus",
		PrevHash:    r1.PrevHash,
		Timestamp:   r1.Timestamp,
		ID:          r1.ID,
	}
	h2, err := Hash(r2)
	require.NoError(t, err)
	assert.Equal(t, r1.SelfHash, h2)
}

func TestNew_HandBuiltDraftsHashBySetValue(t *testing.T) {
	base := Draft{
		ID:          "11111111-2222-3333-4444-555555555555",
		Timestamp:   fixedNow.Unix(),
		ActorID:     "did:example:alice",
		Category:    CategoryEcologicalSustainability,
		TargetIDs:   []string{"t2", "t1"},
		Tags:        []string{"b", "a"},
		EthicsFlags: nil,
		Evidence:    json.RawMessage(`{ "y": 2, "x": 1 }`),
	}
	reordered := base
	reordered.TargetIDs = []string{"t1", "t2", "t1"}
	reordered.Tags = []string{"a", "b"}
	reordered.EthicsFlags = []string{}
	reordered.Evidence = json.RawMessage(`{"x":1,"y":2}`)

	r1, err := New(base, GenesisHash)
	require.NoError(t, err)
	r2, err := New(reordered, GenesisHash)
	require.NoError(t, err)

	assert.Equal(t, r1.SelfHash, r2.SelfHash)
	assert.Equal(t, []string{"a", "b"}, r1.Tags)
	assert.Equal(t, []string{"t1", "t2"}, r2.TargetIDs)
	assert.Equal(t, `{"x":1,"y":2}`, string(r1.Evidence))

	// NFC and decomposed spellings of the same actor are one actor.
	decomposed := base
	decomposed.ActorID = "did:example:jose\u0301"
	composed := base
	composed.ActorID = "did:example:jos\u00e9"
	r3, err := New(decomposed, GenesisHash)
	require.NoError(t, err)
	r4, err := New(composed, GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, r4.SelfHash, r3.SelfHash)
}

func TestNew_RejectsNonObjectEvidence(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x"})
	d.Evidence = json.RawMessage(`[1]`)
	_, err := New(d, GenesisHash)
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestHash_ChangesWithAnyField(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x"})
	r, err := New(d, GenesisHash)
	require.NoError(t, err)

	mutate := []func(*Record){
		func(r *Record) { r.ActorID = "b" },
		func(r *Record) { r.Timestamp++ },
		func(r *Record) { r.PrevHash = strings.Repeat("1", 64) },
		func(r *Record) { r.Tags = []string{"t"} },
		func(r *Record) { r.HarmFlag = true },
		func(r *Record) { r.EthicsFlags = []string{"coercion"} },
		func(r *Record) { r.Evidence = json.RawMessage(`{"k":1}`) },
	}
	for i, m := range mutate {
		c := r.Clone()
		m(&c)
		h, err := Hash(c)
		require.NoError(t, err)
		assert.NotEqual(t, r.SelfHash, h, "mutation %d", i)
	}
}

func TestCanonicalize_ExcludesSelfHashAndSortsKeys(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x"})
	r, err := New(d, GenesisHash)
	require.NoError(t, err)

	b, err := Canonicalize(r)
	require.NoError(t, err)
	s := string(b)
	assert.NotContains(t, s, "self_hash")
	assert.True(t, strings.HasPrefix(s, `{"actor_id":"a","category":"x","ethics_flags":[],"evidence":{},"harm_flag":false,"id":`))
}

func TestEncodeDecode_ByteIdentical(t *testing.T) {
	d := mustDraft(t, Intent{
		ActorID:  "a",
		Category: CategoryMathScienceEducation,
		Tags:     []string{"consent"},
		Evidence: map[string]any{"hours": 2.5, "notes": "<b>"},
	})
	r, err := New(d, GenesisHash)
	require.NoError(t, err)

	line, err := Encode(r)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"self_hash":"`+r.SelfHash+`"`)

	back, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, r, back)

	again, err := Encode(back)
	require.NoError(t, err)
	assert.Equal(t, line, again)
}

func TestRecord_CleanAndTags(t *testing.T) {
	r := Record{Tags: []string{"consent"}}
	assert.True(t, r.Clean())
	assert.True(t, r.HasTag("consent"))
	assert.False(t, r.HasTag("anchored"))

	r.HarmFlag = true
	assert.False(t, r.Clean())
	r = Record{EthicsFlags: []string{"x"}}
	assert.False(t, r.Clean())
}

func TestRecord_EvidenceField(t *testing.T) {
	r := Record{Evidence: json.RawMessage(`{"consent":true}`)}
	v, ok := r.EvidenceField("consent")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = r.EvidenceField("missing")
	assert.False(t, ok)
}

func TestRecord_DraftRoundTrip(t *testing.T) {
	d := mustDraft(t, Intent{ActorID: "a", Category: "x", Tags: []string{"t"}})
	r, err := New(d, GenesisHash)
	require.NoError(t, err)

	again, err := New(r.Draft(), GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestCategory(t *testing.T) {
	assert.Equal(t, CategoryEcologicalSustainability, ParseCategory(" Ecological_Sustainability "))
	assert.Equal(t, Category("Choir Practice"), ParseCategory("Choir Practice"))
	assert.True(t, CategorySignedTrial.Known())
	assert.False(t, Category("choir").Known())
	assert.True(t, CategoryHomelessnessRelief.IsGoodDeed())
	assert.False(t, CategoryResourceSharing.IsGoodDeed())
}
