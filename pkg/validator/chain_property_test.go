//go:build property
// +build property

package validator_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
	"github.com/Mindburn-Labs/deedchain/pkg/validator"
)

func sealChain(actors []string) []deed.Record {
	out := make([]deed.Record, 0, len(actors))
	prev := deed.GenesisHash
	for i, a := range actors {
		d, err := deed.NewDraft(deed.Intent{
			ActorID:  "actor-" + a,
			Category: deed.CategoryResourceSharing,
			Tags:     []string{a},
		}, time.Unix(int64(1_700_000_000+i), 0))
		if err != nil {
			panic(err)
		}
		r, err := deed.New(d, prev)
		if err != nil {
			panic(err)
		}
		out = append(out, r)
		prev = r.SelfHash
	}
	return out
}

// Property: a freshly sealed chain always validates.
func TestChainValidity_SealedChainsValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sealed chains validate", prop.ForAll(
		func(actors []string) bool {
			return validator.ValidateChain(sealChain(actors))
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Property: changing any record's content or link invalidates the chain.
func TestChainValidity_AnyTamperInvalidates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tampered chains do not validate", prop.ForAll(
		func(actors []string, pick int, field int) bool {
			chain := sealChain(actors)
			i := pick % len(chain)
			switch field % 3 {
			case 0:
				chain[i].ActorID += "x"
			case 1:
				chain[i].PrevHash = chain[i].SelfHash
			case 2:
				chain[i].HarmFlag = !chain[i].HarmFlag
			}
			return !validator.ValidateChain(chain)
		},
		gen.SliceOfN(5, gen.AlphaString()).SuchThat(func(v []string) bool { return len(v) > 0 }),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
