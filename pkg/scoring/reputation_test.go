package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, in deed.Intent) deed.Record {
	t.Helper()
	if in.ActorID == "" {
		in.ActorID = "did:example:alice"
	}
	d, err := deed.NewDraft(in, testNow)
	require.NoError(t, err)
	r, err := deed.New(d, deed.GenesisHash)
	require.NoError(t, err)
	return r
}

func TestComputeReputation_EmptySliceUsesBases(t *testing.T) {
	v := Default().ComputeReputation(nil, Signals{})

	assert.InDelta(t, 0.45, v.Privacy, 1e-9)
	assert.InDelta(t, 0.50, v.Compliance, 1e-9)
	assert.InDelta(t, 0.60, v.EcoAlign, 1e-9)
	assert.InDelta(t, 0.70, v.ClinTrust, 1e-9)
	assert.InDelta(t, 0.5275, v.Composite, 1e-9)
	assert.Equal(t, RecommendObserve, Default().Recommend(v))
}

func TestComputeReputation_HighTrustRecommendsGrant(t *testing.T) {
	var records []deed.Record
	for i := 0; i < 10; i++ {
		records = append(records, record(t, deed.Intent{
			Category: deed.CategorySignedTrial,
			Tags:     []string{TagConsent, TagAttested, TagAnchored, TagLowImpact},
		}))
	}
	e := Default()
	v := e.ComputeReputation(records, Signals{DIDBound: true, AssetTerm: 0.9})

	assert.InDelta(t, 0.97, v.Privacy, 1e-9)
	assert.InDelta(t, 0.97, v.Compliance, 1e-9)
	assert.InDelta(t, 0.95, v.EcoAlign, 1e-9)
	assert.InDelta(t, 0.95, v.ClinTrust, 1e-9)
	assert.Greater(t, v.Composite, 0.88)
	assert.Equal(t, RecommendGrant, e.Recommend(v))
}

func TestComputeReputation_AuxiliaryIDsCount(t *testing.T) {
	r := record(t, deed.Intent{Category: deed.CategoryResourceSharing})
	e := Default()

	without := e.ComputeReputation([]deed.Record{r}, Signals{})
	with := e.ComputeReputation([]deed.Record{r}, Signals{
		Attested: map[string]bool{r.ID: true},
		Anchored: map[string]bool{r.ID: true},
	})
	assert.InDelta(t, 0.50, without.Compliance, 1e-9)
	assert.InDelta(t, 0.97, with.Compliance, 1e-9)

	onlyOne := e.ComputeReputation([]deed.Record{r}, Signals{Attested: map[string]bool{r.ID: true}})
	assert.InDelta(t, 0.50, onlyOne.Compliance, 1e-9)
}

func TestComputeReputation_HarmPenaltyIsCapped(t *testing.T) {
	var records []deed.Record
	for i := 0; i < 5; i++ {
		records = append(records, record(t, deed.Intent{Category: deed.CategoryResourceSharing, HarmFlag: true}))
	}
	v := Default().ComputeReputation(records, Signals{})
	assert.InDelta(t, 0.10, v.Compliance, 1e-9)

	c := Count(records, Signals{})
	assert.Equal(t, 5, c.HarmFlags)
}

func TestComputeReputation_FlaggedDeedsNeverRaiseStanding(t *testing.T) {
	e := Default()
	aux := Signals{DIDBound: true}
	var records []deed.Record
	for i := 0; i < 3; i++ {
		records = append(records, record(t, deed.Intent{Category: deed.CategoryResourceSharing}))
	}
	base := e.ComputeReputation(records, aux)
	assert.InDelta(t, 0.529, base.Composite, 1e-9)
	assert.Equal(t, RecommendObserve, e.Recommend(base))

	glowing := []string{TagConsent, TagAttested, TagAnchored, TagLowImpact}
	prev := base
	for i := 0; i < 6; i++ {
		in := deed.Intent{Category: deed.CategorySignedTrial, Tags: glowing}
		if i%2 == 0 {
			in.EthicsFlags = []string{"coercion"}
		} else {
			in.HarmFlag = true
		}
		records = append(records, record(t, in))

		v := e.ComputeReputation(records, aux)
		assert.LessOrEqual(t, v.Composite, prev.Composite, "after %d flagged deeds", i+1)
		assert.Equal(t, base.Privacy, v.Privacy)
		assert.Equal(t, base.EcoAlign, v.EcoAlign)
		assert.Equal(t, base.ClinTrust, v.ClinTrust)
		assert.Equal(t, RecommendObserve, e.Recommend(v))
		prev = v
	}

	c := Count(records, aux)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 3, c.HarmFlags)
	assert.Equal(t, 3, c.EthicsFlagged)
	assert.Zero(t, c.ConsentBound)
	assert.Zero(t, c.AttestAnchored)
	assert.Zero(t, c.SignedTrials)
	assert.InDelta(t, 0.10, prev.Compliance, 1e-9)
}

func TestComputeReputation_FlaggedOnlyActorStaysAtBase(t *testing.T) {
	e := Default()
	flagged := record(t, deed.Intent{
		Category:    deed.CategoryEcologicalSustainability,
		Tags:        []string{TagConsent, TagAttested, TagAnchored, TagLowImpact},
		EthicsFlags: []string{"deception"},
	})
	v := e.ComputeReputation([]deed.Record{flagged}, Signals{DIDBound: true})
	empty := e.ComputeReputation(nil, Signals{DIDBound: true})

	assert.Equal(t, empty.Privacy, v.Privacy)
	assert.Equal(t, empty.EcoAlign, v.EcoAlign)
	assert.InDelta(t, empty.Compliance-0.15, v.Compliance, 1e-9)
	assert.Less(t, v.Composite, empty.Composite)
}

func TestComputeReputation_ConsentFromEvidence(t *testing.T) {
	r := record(t, deed.Intent{
		Category: deed.CategoryEcologicalSustainability,
		Evidence: map[string]any{"consent": true},
	})
	c := Count([]deed.Record{r}, Signals{})
	assert.Equal(t, 1, c.ConsentBound)

	v := Default().ComputeReputation([]deed.Record{r}, Signals{DIDBound: true})
	assert.InDelta(t, 0.952, v.Privacy, 1e-9)
}

func TestComputeReputation_Monotone(t *testing.T) {
	e := Default()
	base := Counts{Total: 20, ConsentBound: 5, AttestAnchored: 5, LowImpactRuns: 5, SignedTrials: 2}
	aux := Signals{DIDBound: true}
	v0 := e.FromCounts(base, aux)

	more := base
	more.ConsentBound++
	more.AttestAnchored++
	more.LowImpactRuns++
	more.SignedTrials++
	v1 := e.FromCounts(more, aux)
	assert.GreaterOrEqual(t, v1.Privacy, v0.Privacy)
	assert.GreaterOrEqual(t, v1.Compliance, v0.Compliance)
	assert.GreaterOrEqual(t, v1.EcoAlign, v0.EcoAlign)
	assert.GreaterOrEqual(t, v1.ClinTrust, v0.ClinTrust)
	assert.Greater(t, v1.Composite, v0.Composite)

	harmed := base
	harmed.HarmFlags = 2
	assert.Less(t, e.FromCounts(harmed, aux).Compliance, v0.Compliance)

	drained := e.FromCounts(base, Signals{DIDBound: true, UnfairDrainCount: 2})
	assert.Less(t, drained.EcoAlign, v0.EcoAlign)
}

func TestComputeReputation_ClampedToUnitInterval(t *testing.T) {
	v := Default().FromCounts(Counts{Total: 1, RecoveryEvents: 100}, Signals{AssetTerm: 5, UnfairDrainCount: 100})
	for _, s := range []float64{v.Privacy, v.Compliance, v.EcoAlign, v.ClinTrust, v.Composite} {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 0.0, v.EcoAlign)
	assert.Equal(t, 1.0, v.ClinTrust)
}

func TestRecommend_Thresholds(t *testing.T) {
	e := Default()
	tests := []struct {
		name string
		v    Vector
		want Recommendation
	}{
		{"grant", Vector{Composite: 0.90, EcoAlign: 0.85}, RecommendGrant},
		{"high composite low eco", Vector{Composite: 0.90, EcoAlign: 0.80}, RecommendCivicDuty},
		{"civic", Vector{Composite: 0.76}, RecommendCivicDuty},
		{"boundary is exclusive", Vector{Composite: 0.75}, RecommendObserve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Recommend(tt.v))
		})
	}
}

func TestNewEngine_ValidatesWeights(t *testing.T) {
	w := DefaultWeights()
	w.Composite.Asset = 0.5
	_, err := NewEngine(w)
	require.ErrorIs(t, err, ErrInvalidWeights)

	w = DefaultWeights()
	w.Eco.DrainPenalty = -1
	_, err = NewEngine(w)
	require.ErrorIs(t, err, ErrInvalidWeights)

	e, err := NewEngine(DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights().Thresholds, e.Weights().Thresholds)
}
