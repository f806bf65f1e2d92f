package deed

import (
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/deedchain/pkg/canonicalize"
)

// canonicalForm is every Record field except self_hash. Key order in the
// output is decided by the JCS transform, not by field order here.
type canonicalForm struct {
	ID          string          `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	PrevHash    string          `json:"prev_hash"`
	ActorID     string          `json:"actor_id"`
	TargetIDs   []string        `json:"target_ids"`
	Category    Category        `json:"category"`
	Tags        []string        `json:"tags"`
	Evidence    json.RawMessage `json:"evidence"`
	EthicsFlags []string        `json:"ethics_flags"`
	HarmFlag    bool            `json:"harm_flag"`
}

// Canonicalize returns the canonical bytes of r: all fields but SelfHash,
// keys sorted lexicographically at every depth, no insignificant whitespace.
func Canonicalize(r Record) ([]byte, error) {
	evidence := r.Evidence
	if len(evidence) == 0 {
		evidence = emptyObject
	}
	b, err := canonicalize.JCS(canonicalForm{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		PrevHash:    r.PrevHash,
		ActorID:     r.ActorID,
		TargetIDs:   nonNil(r.TargetIDs),
		Category:    r.Category,
		Tags:        nonNil(r.Tags),
		Evidence:    evidence,
		EthicsFlags: nonNil(r.EthicsFlags),
		HarmFlag:    r.HarmFlag,
	})
	if err != nil {
		return nil, fmt.Errorf("deed: canonicalize %s: %w", r.ID, err)
	}
	return b, nil
}

// Hash returns the lower-case hex SHA-256 of Canonicalize(r).
func Hash(r Record) (string, error) {
	b, err := Canonicalize(r)
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(b), nil
}

// Encode returns the persisted form of r: a single-line JSON object with
// every field, self_hash included, in canonical key order.
func Encode(r Record) ([]byte, error) {
	if len(r.Evidence) == 0 {
		r.Evidence = emptyObject
	}
	r.TargetIDs = nonNil(r.TargetIDs)
	r.Tags = nonNil(r.Tags)
	r.EthicsFlags = nonNil(r.EthicsFlags)
	b, err := canonicalize.JCS(r)
	if err != nil {
		return nil, fmt.Errorf("deed: encode %s: %w", r.ID, err)
	}
	return b, nil
}

// Decode parses one persisted record. Evidence is re-canonicalized so a
// decoded record re-encodes to identical bytes.
func Decode(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("deed: decode: %w", err)
	}
	if len(r.Evidence) == 0 || string(r.Evidence) == "null" {
		r.Evidence = emptyObject
	} else {
		ev, err := canonicalize.Raw(r.Evidence)
		if err != nil {
			return Record{}, fmt.Errorf("deed: decode evidence: %w", err)
		}
		r.Evidence = ev
	}
	r.TargetIDs = nonNil(r.TargetIDs)
	r.Tags = nonNil(r.Tags)
	r.EthicsFlags = nonNil(r.EthicsFlags)
	return r, nil
}
