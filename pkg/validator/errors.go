package validator

import (
	"errors"
	"fmt"
	"strings"
)

// IntegrityKind classifies a chain integrity failure.
type IntegrityKind string

const (
	HashMismatch IntegrityKind = "HASH_MISMATCH"
	ChainBroken  IntegrityKind = "CHAIN_BROKEN"
)

// PolicyKind classifies a content policy rejection.
type PolicyKind string

const (
	HarmProhibited   PolicyKind = "HARM_PROHIBITED"
	EthicsViolation  PolicyKind = "ETHICS_VIOLATION"
	BioloadViolation PolicyKind = "BIOLOAD_VIOLATION"
	RuleViolation    PolicyKind = "RULE_VIOLATION"
)

var (
	ErrHashMismatch     = errors.New("validator: hash mismatch")
	ErrChainBroken      = errors.New("validator: chain broken")
	ErrHarmProhibited   = errors.New("validator: harm prohibited")
	ErrEthicsViolation  = errors.New("validator: ethics violation")
	ErrBioloadViolation = errors.New("validator: bioload violation")
	ErrRuleViolation    = errors.New("validator: content rule violation")
)

// IntegrityError reports a broken link or a record whose self hash does
// not match its contents. The affected chain segment must not be trusted.
type IntegrityError struct {
	Kind     IntegrityKind
	Index    int
	RecordID string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	switch e.Kind {
	case ChainBroken:
		return fmt.Sprintf("chain broken at entry %d (%s): expected prev %s, got %s", e.Index, e.RecordID, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("hash mismatch at entry %d (%s): computed %s, stored %s", e.Index, e.RecordID, e.Expected, e.Actual)
	}
}

func (e *IntegrityError) Is(target error) bool {
	switch target {
	case ErrHashMismatch:
		return e.Kind == HashMismatch
	case ErrChainBroken:
		return e.Kind == ChainBroken
	}
	return false
}

// PolicyError rejects a single candidate record. It never affects the
// committed chain.
type PolicyError struct {
	Kind   PolicyKind
	Flags  []string
	Rule   string
	Detail string
}

func (e *PolicyError) Error() string {
	var b strings.Builder
	b.WriteString("content rejected: ")
	b.WriteString(string(e.Kind))
	if len(e.Flags) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Flags, ","))
		b.WriteString("]")
	}
	if e.Rule != "" {
		b.WriteString(" rule=")
		b.WriteString(e.Rule)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *PolicyError) Is(target error) bool {
	switch target {
	case ErrHarmProhibited:
		return e.Kind == HarmProhibited
	case ErrEthicsViolation:
		return e.Kind == EthicsViolation
	case ErrBioloadViolation:
		return e.Kind == BioloadViolation
	case ErrRuleViolation:
		return e.Kind == RuleViolation
	}
	return false
}
