// Package budget is the multi-dimensional resource admission kernel.
//
// Every admission request is checked against a risk cap, a per-route or
// global ceiling envelope, the governed-route set, per-subject minimum
// guarantees and a viability predicate, and only then added to the
// subject's running usage. Usage is never decremented except by an explicit
// window reset.
package budget

import (
	"fmt"
	"math"
	"sort"
)

// Well-known envelope dimensions, in evaluation order.
const (
	DimPower = "power" // W
	DimKWh   = "kwh"   // kWh per window
	DimHeat  = "heat"  // heat index
	DimCO2e  = "co2e"  // kg CO2e
	DimWater = "water" // L
)

var dimensionRank = map[string]int{
	DimPower: 0,
	DimKWh:   1,
	DimHeat:  2,
	DimCO2e:  3,
	DimWater: 4,
}

// Envelope maps dimension names to non-negative amounts. The same shape is
// used as a ceiling and as a usage accumulator.
type Envelope map[string]float64

// DefaultEnvelope is the standard global ceiling.
func DefaultEnvelope() Envelope {
	return Envelope{
		DimPower: 850,
		DimKWh:   18,
		DimHeat:  45,
		DimCO2e:  2.5,
		DimWater: 15,
	}
}

// Validate rejects negative, NaN or infinite amounts.
func (e Envelope) Validate() error {
	for _, dim := range Dimensions(e) {
		v := e[dim]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidEnvelope, dim, v)
		}
	}
	return nil
}

// Clone returns a copy of e. A nil envelope clones to an empty one.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Plus returns e + other per dimension.
func (e Envelope) Plus(other Envelope) Envelope {
	out := e.Clone()
	for k, v := range other {
		out[k] += v
	}
	return out
}

// Dimensions returns the union of the dimensions of envs in evaluation
// order: the well-known dimensions first, then any others lexicographically.
func Dimensions(envs ...Envelope) []string {
	seen := make(map[string]struct{})
	var dims []string
	for _, e := range envs {
		for k := range e {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			dims = append(dims, k)
		}
	}
	sort.Slice(dims, func(i, j int) bool {
		ri, iKnown := dimensionRank[dims[i]]
		rj, jKnown := dimensionRank[dims[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown != jKnown:
			return iKnown
		default:
			return dims[i] < dims[j]
		}
	})
	return dims
}
