package scoring

import (
	"sort"
)

// TreeState is one observation of an agent's biophysical state. Every field
// is in [0,1].
type TreeState struct {
	Blood     float64 `json:"blood" yaml:"blood"`
	Oxygen    float64 `json:"oxygen" yaml:"oxygen"`
	Decay     float64 `json:"decay" yaml:"decay"`
	Lifeforce float64 `json:"lifeforce" yaml:"lifeforce"`
	Fear      float64 `json:"fear" yaml:"fear"`
	Pain      float64 `json:"pain" yaml:"pain"`
}

func (s TreeState) stress() float64 { return max(s.Fear, s.Pain) }

// budget is the resource share used to compare an agent with its peers.
func (s TreeState) budget() float64 { return (s.Lifeforce + s.Oxygen) / 2 }

// NormalizeAssets folds a state into one [0,1] asset term. The constant part
// stands for assets that are not observed per state.
func NormalizeAssets(s TreeState) float64 {
	return clamp01(s.Blood*0.12 + s.Oxygen*0.11 + s.Lifeforce*0.15 +
		(1-s.Fear)*0.08 + (1-s.Pain)*0.07 + 0.10 + 0.13 + 0.14 + 0.10)
}

// Windows sizes the history windows the predicates look at.
type Windows struct {
	Calm             int `json:"calm" yaml:"calm"`
	Overload         int `json:"overload" yaml:"overload"`
	OverloadLookback int `json:"overload_lookback" yaml:"overload_lookback"`
	Recovery         int `json:"recovery" yaml:"recovery"`
	RecoveryHold     int `json:"recovery_hold" yaml:"recovery_hold"`
}

func DefaultWindows() Windows {
	return Windows{Calm: 10, Overload: 10, OverloadLookback: 3, Recovery: 8, RecoveryHold: 4}
}

type avgs struct{ stress, decay, energy float64 }

func average(states []TreeState) avgs {
	var a avgs
	if len(states) == 0 {
		return a
	}
	for _, s := range states {
		a.stress += s.stress()
		a.decay += s.Decay
		a.energy += s.Lifeforce
	}
	n := float64(len(states))
	return avgs{a.stress / n, a.decay / n, a.energy / n}
}

// CalmStable holds when the last window states are low-stress, low-decay and
// high-energy on average.
func CalmStable(history []TreeState, window int) bool {
	if window <= 0 || len(history) < window {
		return false
	}
	a := average(history[len(history)-window:])
	return a.stress <= 0.35 && a.decay <= 0.40 && a.energy >= 0.65
}

// Overloaded holds when stress or decay is high and still rising compared to
// the lookback states just before the window.
func Overloaded(history []TreeState, window, lookback int) bool {
	if window <= 0 || lookback <= 0 || len(history) < window+lookback {
		return false
	}
	n := len(history)
	recent := average(history[n-window:])
	prev := average(history[n-window-lookback : n-window])
	return (recent.stress >= 0.65 && recent.stress-prev.stress >= 0.08) ||
		(recent.decay >= 0.70 && recent.decay-prev.decay >= 0.06)
}

// Recovery holds when the last hold states improved on the state just
// before them: less stress, less decay, more energy.
func Recovery(history []TreeState, window, hold int) bool {
	if hold <= 0 || len(history) < window+hold || len(history) < hold+1 {
		return false
	}
	n := len(history)
	recent := average(history[n-hold:])
	pivot := history[n-hold-1]
	return recent.stress-pivot.stress() <= -0.05 &&
		recent.decay-pivot.Decay <= -0.04 &&
		recent.energy-pivot.Lifeforce >= 0.06
}

// UnfairDrain holds when self is at most 75% of the peer median while
// overloaded at least 60% of the time.
func UnfairDrain(peers []float64, self, overloadFrac float64) bool {
	if len(peers) == 0 {
		return false
	}
	p := append([]float64(nil), peers...)
	sort.Float64s(p)
	median := p[len(p)/2]
	return self <= 0.75*median && overloadFrac >= 0.6
}

// Predicates is the per-agent diagnostic outcome.
type Predicates struct {
	CalmStable  bool `json:"calm_stable"`
	Overloaded  bool `json:"overloaded"`
	Recovery    bool `json:"recovery"`
	UnfairDrain bool `json:"unfair_drain"`
}

// Observation is the state history of one agent, oldest first.
type Observation struct {
	AgentID string      `json:"agent_id"`
	History []TreeState `json:"history"`
}

// Evaluate computes predicates for every agent with a non-empty history.
func Evaluate(obs []Observation, w Windows) map[string]Predicates {
	peers := make([]float64, 0, len(obs))
	for _, o := range obs {
		if len(o.History) > 0 {
			peers = append(peers, o.History[len(o.History)-1].budget())
		}
	}

	out := make(map[string]Predicates, len(obs))
	for _, o := range obs {
		if len(o.History) == 0 {
			continue
		}
		p := Predicates{
			CalmStable: CalmStable(o.History, w.Calm),
			Overloaded: Overloaded(o.History, w.Overload, w.OverloadLookback),
			Recovery:   Recovery(o.History, w.Recovery, w.RecoveryHold),
		}
		overloadFrac := 0.2
		if p.Overloaded {
			overloadFrac = 0.7
		}
		p.UnfairDrain = UnfairDrain(peers, o.History[len(o.History)-1].budget(), overloadFrac)
		if p.Overloaded {
			p.CalmStable = false
		}
		out[o.AgentID] = p
	}
	return out
}

// AuxFromObservations turns observations into the auxiliary signals used by
// ComputeReputation. Attestation, anchoring and identity are left unset.
func AuxFromObservations(obs []Observation, w Windows) Signals {
	var s Signals
	var assetSum float64
	var n int
	for _, p := range Evaluate(obs, w) {
		if p.UnfairDrain {
			s.UnfairDrainCount++
		}
		if p.Recovery {
			s.RecoveryCount++
		}
	}
	for _, o := range obs {
		if len(o.History) == 0 {
			continue
		}
		assetSum += NormalizeAssets(o.History[len(o.History)-1])
		n++
	}
	if n > 0 {
		s.AssetTerm = assetSum / float64(n)
	}
	return s
}
