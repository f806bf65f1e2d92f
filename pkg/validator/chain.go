// Package validator checks chain integrity and deed content policy.
//
// Integrity and content are independent: ValidateChain looks only at hash
// links, ValidateContent only at harm and ethics flags. ValidateLedger runs
// both per record, content first.
package validator

import (
	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// ValidateRecord checks that r links to expectedPrevHash and that its self
// hash matches its canonical form. index is reported in errors only.
func ValidateRecord(r deed.Record, expectedPrevHash string) error {
	return validateAt(r, expectedPrevHash, 0)
}

func validateAt(r deed.Record, expectedPrevHash string, index int) error {
	if r.PrevHash != expectedPrevHash {
		return &IntegrityError{
			Kind:     ChainBroken,
			Index:    index,
			RecordID: r.ID,
			Expected: expectedPrevHash,
			Actual:   r.PrevHash,
		}
	}
	computed, err := deed.Hash(r)
	if err != nil || computed != r.SelfHash {
		return &IntegrityError{
			Kind:     HashMismatch,
			Index:    index,
			RecordID: r.ID,
			Expected: computed,
			Actual:   r.SelfHash,
		}
	}
	return nil
}

// VerifyChain walks records from genesis and returns the first integrity
// failure, or nil if every link holds.
func VerifyChain(records []deed.Record) error {
	expected := deed.GenesisHash
	for i, r := range records {
		if err := validateAt(r, expected, i); err != nil {
			return err
		}
		expected = r.SelfHash
	}
	return nil
}

// ValidateChain reports whether every link in records holds. A single
// break anywhere invalidates the whole sequence.
func ValidateChain(records []deed.Record) bool {
	return VerifyChain(records) == nil
}

// ValidateLedger checks content policy and then integrity for each record in
// order and returns the first failure.
func ValidateLedger(records []deed.Record) error {
	expected := deed.GenesisHash
	for i, r := range records {
		if err := ValidateContent(r); err != nil {
			return err
		}
		if err := validateAt(r, expected, i); err != nil {
			return err
		}
		expected = r.SelfHash
	}
	return nil
}
