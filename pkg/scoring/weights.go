package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// ErrInvalidWeights is returned by Weights.Validate.
var ErrInvalidWeights = errors.New("scoring: invalid weights")

// Weights holds every tunable constant used by the engine. The defaults
// reproduce the reference tables; operators override them from YAML.
type Weights struct {
	Privacy    PrivacyWeights    `json:"privacy" yaml:"privacy"`
	Compliance ComplianceWeights `json:"compliance" yaml:"compliance"`
	Eco        EcoWeights        `json:"eco" yaml:"eco"`
	Clinical   ClinicalWeights   `json:"clinical" yaml:"clinical"`
	Composite  CompositeWeights  `json:"composite" yaml:"composite"`
	Thresholds Thresholds        `json:"thresholds" yaml:"thresholds"`
	Advisory   AdvisoryWeights   `json:"advisory" yaml:"advisory"`
}

type PrivacyWeights struct {
	BoundBase   float64 `json:"bound_base" yaml:"bound_base"`
	UnboundBase float64 `json:"unbound_base" yaml:"unbound_base"`
	PerEvent    float64 `json:"per_event" yaml:"per_event"`
	EventCap    float64 `json:"event_cap" yaml:"event_cap"`
}

type ComplianceWeights struct {
	AttestedBase   float64 `json:"attested_base" yaml:"attested_base"`
	UnattestedBase float64 `json:"unattested_base" yaml:"unattested_base"`
	HarmPenalty    float64 `json:"harm_penalty" yaml:"harm_penalty"`
	HarmPenaltyCap float64 `json:"harm_penalty_cap" yaml:"harm_penalty_cap"`
}

type EcoWeights struct {
	Base          float64 `json:"base" yaml:"base"`
	LowImpactGain float64 `json:"low_impact_gain" yaml:"low_impact_gain"`
	DrainPenalty  float64 `json:"drain_penalty" yaml:"drain_penalty"`
}

type ClinicalWeights struct {
	Base        float64 `json:"base" yaml:"base"`
	PerTrial    float64 `json:"per_trial" yaml:"per_trial"`
	TrialCap    float64 `json:"trial_cap" yaml:"trial_cap"`
	PerRecovery float64 `json:"per_recovery" yaml:"per_recovery"`
}

// CompositeWeights must sum to 1 so the composite is a convex combination.
type CompositeWeights struct {
	Privacy    float64 `json:"privacy" yaml:"privacy"`
	Compliance float64 `json:"compliance" yaml:"compliance"`
	Eco        float64 `json:"eco" yaml:"eco"`
	Clinical   float64 `json:"clinical" yaml:"clinical"`
	Asset      float64 `json:"asset" yaml:"asset"`
}

type Thresholds struct {
	GrantComposite float64 `json:"grant_composite" yaml:"grant_composite"`
	GrantEco       float64 `json:"grant_eco" yaml:"grant_eco"`
	CivicComposite float64 `json:"civic_composite" yaml:"civic_composite"`
}

type AdvisoryWeights struct {
	Base          float64                   `json:"base" yaml:"base"`
	EthicsPenalty float64                   `json:"ethics_penalty" yaml:"ethics_penalty"`
	GoodTagBonus  float64                   `json:"good_tag_bonus" yaml:"good_tag_bonus"`
	GrantBase     map[deed.Category]float64 `json:"grant_base" yaml:"grant_base"`
	DefaultGrant  float64                   `json:"default_grant" yaml:"default_grant"`
	PerTagBonus   float64                   `json:"per_tag_bonus" yaml:"per_tag_bonus"`
}

// DefaultWeights returns the reference tables.
func DefaultWeights() Weights {
	return Weights{
		Privacy:    PrivacyWeights{BoundBase: 0.95, UnboundBase: 0.45, PerEvent: 0.002, EventCap: 0.05},
		Compliance: ComplianceWeights{AttestedBase: 0.97, UnattestedBase: 0.50, HarmPenalty: 0.15, HarmPenaltyCap: 0.40},
		Eco:        EcoWeights{Base: 0.60, LowImpactGain: 0.35, DrainPenalty: 0.12},
		Clinical:   ClinicalWeights{Base: 0.70, PerTrial: 0.04, TrialCap: 0.25, PerRecovery: 0.03},
		Composite:  CompositeWeights{Privacy: 0.25, Compliance: 0.25, Eco: 0.25, Clinical: 0.20, Asset: 0.05},
		Thresholds: Thresholds{GrantComposite: 0.88, GrantEco: 0.82, CivicComposite: 0.75},
		Advisory: AdvisoryWeights{
			Base:          0.85,
			EthicsPenalty: 0.15,
			GoodTagBonus:  0.08,
			GrantBase: map[deed.Category]float64{
				deed.CategoryEcologicalSustainability: 25,
				deed.CategoryHomelessnessRelief:       30,
				deed.CategoryMathScienceEducation:     20,
			},
			DefaultGrant: 10,
			PerTagBonus:  0.05,
		},
	}
}

// Validate rejects negative weights and a composite that is not convex.
func (w Weights) Validate() error {
	c := w.Composite
	for name, v := range map[string]float64{
		"composite.privacy": c.Privacy, "composite.compliance": c.Compliance,
		"composite.eco": c.Eco, "composite.clinical": c.Clinical, "composite.asset": c.Asset,
		"privacy.per_event": w.Privacy.PerEvent, "compliance.harm_penalty": w.Compliance.HarmPenalty,
		"eco.drain_penalty": w.Eco.DrainPenalty, "clinical.per_trial": w.Clinical.PerTrial,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidWeights, name, v)
		}
	}
	sum := c.Privacy + c.Compliance + c.Eco + c.Clinical + c.Asset
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: composite weights sum to %v, want 1", ErrInvalidWeights, sum)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
