// Package scoring derives advisory reputation scores from ledger slices.
//
// Nothing here is a source of truth: every vector is recomputed from the
// records and signals passed in, and every recommendation is advisory. No
// function in this package authorizes a disbursement.
package scoring

import (
	"strings"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// Tags counted by ComputeReputation.
const (
	TagConsent     = "consent"
	TagAttested    = "attested"
	TagAnchored    = "anchored"
	TagLowEnergy   = "low_energy"
	TagLowImpact   = "low_impact"
	TagSignedTrial = "signed_trial"
)

// Signals are auxiliary inputs that do not live on the ledger.
type Signals struct {
	// DIDBound is true when the actor's identity is bound to a DID.
	DIDBound bool
	// Attested and Anchored hold record ids proven out of band, by a
	// verified attestation or a published anchor. Tags count too.
	Attested map[string]bool
	Anchored map[string]bool
	// UnfairDrainCount is the number of UNFAIR_DRAIN observations.
	UnfairDrainCount int
	// RecoveryCount adds RECOVERY observations to recovery deeds.
	RecoveryCount int
	// AssetTerm is the normalized tree asset average in [0,1].
	AssetTerm float64
}

// Vector is the four sub-scores and their composite, each in [0,1].
type Vector struct {
	Privacy    float64 `json:"privacy"`
	Compliance float64 `json:"compliance"`
	EcoAlign   float64 `json:"eco_align"`
	ClinTrust  float64 `json:"clin_trust"`
	Composite  float64 `json:"composite"`
}

// Counts are the ledger statistics the sub-scores are computed from.
// Total and the positive counts cover clean records only; a flagged record
// shows up solely in HarmFlags or EthicsFlagged.
type Counts struct {
	Total          int `json:"total"`
	ConsentBound   int `json:"consent_bound"`
	AttestAnchored int `json:"attested_and_anchored"`
	HarmFlags      int `json:"harm_flags"`
	EthicsFlagged  int `json:"ethics_flagged"`
	LowImpactRuns  int `json:"low_impact_runs"`
	SignedTrials   int `json:"signed_trials"`
	RecoveryEvents int `json:"recovery_events"`
}

// Engine computes reputation vectors with a fixed weight table.
type Engine struct {
	w Weights
}

// NewEngine validates w and returns an engine using it.
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{w: w}, nil
}

// Default returns an engine with DefaultWeights.
func Default() *Engine {
	return &Engine{w: DefaultWeights()}
}

func (e *Engine) Weights() Weights { return e.w }

// Count gathers the statistics ComputeReputation uses.
func Count(records []deed.Record, aux Signals) Counts {
	var c Counts
	for _, r := range records {
		switch {
		case r.HarmFlag:
			c.HarmFlags++
			continue
		case len(r.EthicsFlags) > 0:
			c.EthicsFlagged++
			continue
		}
		c.Total++
		if r.HasTag(TagConsent) || evidenceTrue(r, TagConsent) {
			c.ConsentBound++
		}
		attested := r.HasTag(TagAttested) || aux.Attested[r.ID]
		anchored := r.HasTag(TagAnchored) || aux.Anchored[r.ID]
		if attested && anchored {
			c.AttestAnchored++
		}
		if r.HasTag(TagLowEnergy) || r.HasTag(TagLowImpact) {
			c.LowImpactRuns++
		}
		if r.Category == deed.CategorySignedTrial || r.HasTag(TagSignedTrial) {
			c.SignedTrials++
		}
		if strings.Contains(string(r.Category), "recovery") {
			c.RecoveryEvents++
		}
	}
	c.RecoveryEvents += aux.RecoveryCount
	return c
}

func evidenceTrue(r deed.Record, key string) bool {
	v, ok := r.EvidenceField(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func fraction(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// ComputeReputation scores records together with aux.
func (e *Engine) ComputeReputation(records []deed.Record, aux Signals) Vector {
	return e.FromCounts(Count(records, aux), aux)
}

// FromCounts scores precomputed counts.
func (e *Engine) FromCounts(c Counts, aux Signals) Vector {
	w := e.w
	var v Vector

	privacyBase := w.Privacy.UnboundBase
	if aux.DIDBound {
		privacyBase += (w.Privacy.BoundBase - w.Privacy.UnboundBase) * fraction(c.ConsentBound, c.Total)
	}
	v.Privacy = clamp01(privacyBase + min(float64(c.Total)*w.Privacy.PerEvent, w.Privacy.EventCap))

	complianceBase := w.Compliance.UnattestedBase +
		(w.Compliance.AttestedBase-w.Compliance.UnattestedBase)*fraction(c.AttestAnchored, c.Total)
	penalty := min(float64(c.HarmFlags+c.EthicsFlagged)*w.Compliance.HarmPenalty, w.Compliance.HarmPenaltyCap)
	v.Compliance = clamp01(complianceBase - penalty)

	v.EcoAlign = clamp01(w.Eco.Base +
		fraction(c.LowImpactRuns, c.Total)*w.Eco.LowImpactGain -
		float64(aux.UnfairDrainCount)*w.Eco.DrainPenalty)

	v.ClinTrust = clamp01(w.Clinical.Base +
		min(float64(c.SignedTrials)*w.Clinical.PerTrial, w.Clinical.TrialCap) +
		float64(c.RecoveryEvents)*w.Clinical.PerRecovery)

	cw := w.Composite
	v.Composite = clamp01(v.Privacy*cw.Privacy +
		v.Compliance*cw.Compliance +
		v.EcoAlign*cw.Eco +
		v.ClinTrust*cw.Clinical +
		clamp01(aux.AssetTerm)*cw.Asset)
	return v
}

// Recommendation is an advisory label. It never authorizes anything.
type Recommendation string

const (
	RecommendGrant     Recommendation = "eco_grant"
	RecommendCivicDuty Recommendation = "civic_duty"
	RecommendObserve   Recommendation = "observe"
)

// Recommend maps v onto an advisory label.
func (e *Engine) Recommend(v Vector) Recommendation {
	t := e.w.Thresholds
	switch {
	case v.Composite > t.GrantComposite && v.EcoAlign > t.GrantEco:
		return RecommendGrant
	case v.Composite > t.CivicComposite:
		return RecommendCivicDuty
	default:
		return RecommendObserve
	}
}
