// Package deed defines the immutable event record ("deed") stored in the ledger,
// its canonical form and its hash.
//
// A Record is produced exactly once, by New, from a Draft and the hash of its
// chain predecessor. Callers treat Record values as immutable; the ledger only
// hands out copies.
package deed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/deedchain/pkg/canonicalize"
)

// GenesisHash is the prev_hash of the first record and the initial expected
// hash when walking a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var emptyObject = json.RawMessage(`{}`)

// ErrInvalidDraft is returned when a draft is missing required fields or
// carries evidence that is not a JSON object.
var ErrInvalidDraft = errors.New("deed: invalid draft")

// Record is one attested, hash-chained action.
//
// Every field is serialized, empty collections included. SelfHash is the
// SHA-256 of Canonicalize(record) and is itself excluded from the canonical form.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	PrevHash    string          `json:"prev_hash"`
	SelfHash    string          `json:"self_hash"`
	ActorID     string          `json:"actor_id"`
	TargetIDs   []string        `json:"target_ids"`
	Category    Category        `json:"category"`
	Tags        []string        `json:"tags"`
	Evidence    json.RawMessage `json:"evidence"`
	EthicsFlags []string        `json:"ethics_flags"`
	HarmFlag    bool            `json:"harm_flag"`
}

// Intent is the caller-supplied content of a deed.
type Intent struct {
	ActorID     string
	TargetIDs   []string
	Category    Category
	Tags        []string
	Evidence    any
	EthicsFlags []string
	HarmFlag    bool
}

// Draft is a logical append intent with its id and timestamp already fixed.
// Retrying an append with the same Draft never produces a second,
// hash-distinct record for the same intent.
type Draft struct {
	ID          string
	Timestamp   int64
	ActorID     string
	TargetIDs   []string
	Category    Category
	Tags        []string
	Evidence    json.RawMessage
	EthicsFlags []string
	HarmFlag    bool
}

// NewDraft assigns a fresh id and the timestamp of now to in.
// Set-valued fields are normalized and evidence is stored in canonical form.
func NewDraft(in Intent, now time.Time) (Draft, error) {
	if in.ActorID == "" {
		return Draft{}, fmt.Errorf("%w: actor id is required", ErrInvalidDraft)
	}
	if in.Category == "" {
		return Draft{}, fmt.Errorf("%w: category is required", ErrInvalidDraft)
	}

	evidence, err := encodeEvidence(in.Evidence)
	if err != nil {
		return Draft{}, err
	}

	return Draft{
		ID:          uuid.New().String(),
		Timestamp:   now.UTC().Unix(),
		ActorID:     canonicalize.String(in.ActorID),
		TargetIDs:   canonicalize.StringSet(in.TargetIDs),
		Category:    Category(canonicalize.String(string(in.Category))),
		Tags:        canonicalize.StringSet(in.Tags),
		Evidence:    evidence,
		EthicsFlags: canonicalize.StringSet(in.EthicsFlags),
		HarmFlag:    in.HarmFlag,
	}, nil
}

func encodeEvidence(v any) (json.RawMessage, error) {
	var raw []byte
	switch e := v.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		raw = e
	case []byte:
		raw = e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("%w: evidence: %v", ErrInvalidDraft, err)
		}
		raw = b
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyObject, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: evidence must be a JSON object", ErrInvalidDraft)
	}
	canonical, err := canonicalize.Raw(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: evidence: %v", ErrInvalidDraft, err)
	}
	return canonical, nil
}

// New seals d onto the chain after prevHash and computes its self hash.
func New(d Draft, prevHash string) (Record, error) {
	if d.ID == "" {
		return Record{}, fmt.Errorf("%w: draft has no id", ErrInvalidDraft)
	}
	if !canonicalize.IsDigest(prevHash) {
		return Record{}, fmt.Errorf("%w: prev hash %q is not a sha256 hex digest", ErrInvalidDraft, prevHash)
	}
	// Drafts may be built by hand, so sets and evidence are normalized again
	// here; the hash depends only on field values.
	evidence, err := encodeEvidence(d.Evidence)
	if err != nil {
		return Record{}, err
	}

	r := Record{
		ID:          d.ID,
		Timestamp:   d.Timestamp,
		PrevHash:    prevHash,
		ActorID:     canonicalize.String(d.ActorID),
		TargetIDs:   canonicalize.StringSet(d.TargetIDs),
		Category:    Category(canonicalize.String(string(d.Category))),
		Tags:        canonicalize.StringSet(d.Tags),
		Evidence:    slices.Clone(evidence),
		EthicsFlags: canonicalize.StringSet(d.EthicsFlags),
		HarmFlag:    d.HarmFlag,
	}
	h, err := Hash(r)
	if err != nil {
		return Record{}, err
	}
	r.SelfHash = h
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

// Clean reports whether r carries neither a harm flag nor ethics flags.
// Only clean records are ever eligible for a positive recommendation.
func (r Record) Clean() bool {
	return !r.HarmFlag && len(r.EthicsFlags) == 0
}

// HasTag reports whether tag is among r's tags.
func (r Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// EvidenceField decodes the top-level evidence member key, if present.
func (r Record) EvidenceField(key string) (any, bool) {
	if len(r.Evidence) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(r.Evidence, &m); err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.TargetIDs = slices.Clone(r.TargetIDs)
	c.Tags = slices.Clone(r.Tags)
	c.EthicsFlags = slices.Clone(r.EthicsFlags)
	c.Evidence = slices.Clone(r.Evidence)
	return c
}

// Draft recovers the intent a record was sealed from.
func (r Record) Draft() Draft {
	c := r.Clone()
	return Draft{
		ID:          c.ID,
		Timestamp:   c.Timestamp,
		ActorID:     c.ActorID,
		TargetIDs:   c.TargetIDs,
		Category:    c.Category,
		Tags:        c.Tags,
		Evidence:    c.Evidence,
		EthicsFlags: c.EthicsFlags,
		HarmFlag:    c.HarmFlag,
	}
}
