package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/deedchain/pkg/canonicalize"
	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

const (
	leafPrefix = "deedchain:anchor:leaf:v1"
	nodePrefix = "deedchain:anchor:node:v1"
)

// ErrEmptySegment is returned when a root is requested over no records.
var ErrEmptySegment = errors.New("anchor: empty segment")

// Tree is a Merkle tree over a contiguous chain segment. Leaves keep chain
// order; an odd node at any level is paired with itself.
type Tree struct {
	Leaves []string
	Levels [][]string
	Root   string
}

func leafHash(r deed.Record) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(r.ID)
	buf.WriteByte(0)
	buf.WriteString(r.SelfHash)
	return sha256Hex(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

// BuildTree hashes records into a Merkle tree.
func BuildTree(records []deed.Record) (*Tree, error) {
	if len(records) == 0 {
		return nil, ErrEmptySegment
	}
	leaves := make([]string, len(records))
	for i, r := range records {
		if !canonicalize.IsDigest(r.SelfHash) {
			return nil, fmt.Errorf("anchor: record %d (%s) has no self hash", i, r.ID)
		}
		leaves[i] = leafHash(r)
	}

	t := &Tree{Leaves: leaves}
	level := leaves
	for len(level) > 1 {
		t.Levels = append(t.Levels, level)
		level = nextLevel(level)
	}
	t.Levels = append(t.Levels, level)
	t.Root = level[0]
	return t, nil
}

// Root is shorthand for BuildTree(records).Root.
func Root(records []deed.Record) (string, error) {
	t, err := BuildTree(records)
	if err != nil {
		return "", err
	}
	return t.Root, nil
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes[:len(hashes):len(hashes)], hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R"
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof shows that one record is covered by an anchor root.
type InclusionProof struct {
	RecordID string      `json:"record_id"`
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Path     []ProofStep `json:"path"`
}

// Proof returns the inclusion proof for leaf index i.
func (t *Tree) Proof(i int, recordID string) (InclusionProof, error) {
	if i < 0 || i >= len(t.Leaves) {
		return InclusionProof{}, fmt.Errorf("anchor: leaf %d out of range [0,%d)", i, len(t.Leaves))
	}
	p := InclusionProof{RecordID: recordID, LeafHash: t.Leaves[i], Root: t.Root}
	idx := i
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}
		side := "R"
		if sibling < idx {
			side = "L"
		}
		p.Path = append(p.Path, ProofStep{Side: side, SiblingHash: level[sibling]})
		idx /= 2
	}
	return p, nil
}

// VerifyProof checks p against r and the trusted root.
func VerifyProof(p InclusionProof, r deed.Record, root string) bool {
	if root == "" || !strings.EqualFold(p.Root, root) || leafHash(r) != p.LeafHash {
		return false
	}
	cur := p.LeafHash
	for _, step := range p.Path {
		if step.Side == "L" {
			cur = nodeHash(step.SiblingHash, cur)
		} else {
			cur = nodeHash(cur, step.SiblingHash)
		}
	}
	return strings.EqualFold(cur, root)
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
