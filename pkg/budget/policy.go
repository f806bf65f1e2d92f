package budget

import (
	"fmt"
	"math"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// MaxRiskCeiling is the fixed global cap on the live risk indicator. A policy
// may configure a lower cap, never a higher one.
const MaxRiskCeiling = 0.30

// Routes that never auto-admit in DefaultPolicy.
const (
	RouteAltar    = "altar"
	RouteDonation = "donation"
	RouteLesson   = "lesson"
)

// Policy is one immutable snapshot of admission configuration.
type Policy struct {
	Version     string              `json:"version" yaml:"version"`
	RiskCeiling float64             `json:"risk_ceiling,omitempty" yaml:"risk_ceiling,omitempty"`
	Global      Envelope            `json:"global" yaml:"global"`
	Routes      map[string]Envelope `json:"routes,omitempty" yaml:"routes,omitempty"`
	Minimums    map[string]Envelope `json:"minimums,omitempty" yaml:"minimums,omitempty"`
	Governed    []string            `json:"governed_routes,omitempty" yaml:"governed_routes,omitempty"`
	// Viability is an optional CEL expression over `demand`; see CELViability.
	Viability string `json:"viability,omitempty" yaml:"viability,omitempty"`
}

// DefaultPolicy returns the standard envelope with the altar route capped
// and the altar, donation and lesson routes governed.
func DefaultPolicy() *Policy {
	return &Policy{
		Version:     "1.0.0",
		RiskCeiling: MaxRiskCeiling,
		Global:      DefaultEnvelope(),
		Routes: map[string]Envelope{
			RouteAltar: {DimPower: 420, DimKWh: 8},
		},
		Minimums: map[string]Envelope{},
		Governed: []string{RouteAltar, RouteDonation, RouteLesson},
	}
}

// Validate checks the snapshot is well formed.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if _, err := semver.NewVersion(p.Version); err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidPolicy, p.Version, err)
	}
	if math.IsNaN(p.RiskCeiling) || p.RiskCeiling < 0 || p.RiskCeiling > MaxRiskCeiling {
		return fmt.Errorf("%w: risk_ceiling %v outside [0, %v]", ErrInvalidPolicy, p.RiskCeiling, MaxRiskCeiling)
	}
	if err := p.Global.Validate(); err != nil {
		return fmt.Errorf("%w: global: %v", ErrInvalidPolicy, err)
	}
	for route, env := range p.Routes {
		if err := env.Validate(); err != nil {
			return fmt.Errorf("%w: route %s: %v", ErrInvalidPolicy, route, err)
		}
	}
	for subject, env := range p.Minimums {
		if err := env.Validate(); err != nil {
			return fmt.Errorf("%w: minimum %s: %v", ErrInvalidPolicy, subject, err)
		}
	}
	return nil
}

// Clone returns a deep copy of p.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Global = p.Global.Clone()
	c.Routes = make(map[string]Envelope, len(p.Routes))
	for k, v := range p.Routes {
		c.Routes[k] = v.Clone()
	}
	c.Minimums = make(map[string]Envelope, len(p.Minimums))
	for k, v := range p.Minimums {
		c.Minimums[k] = v.Clone()
	}
	c.Governed = append([]string(nil), p.Governed...)
	sort.Strings(c.Governed)
	return &c
}

// snapshot is a validated policy plus the derived lookup structures the
// kernel reads on every request. It is never mutated after construction.
type snapshot struct {
	policy    *Policy
	version   *semver.Version
	riskCap   float64
	governed  map[string]struct{}
	viability Viability
}

func newSnapshot(p *Policy) (*snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := p.Clone()
	v, _ := semver.NewVersion(c.Version)

	riskCap := c.RiskCeiling
	if riskCap == 0 {
		riskCap = MaxRiskCeiling
	}

	s := &snapshot{
		policy:   c,
		version:  v,
		riskCap:  riskCap,
		governed: make(map[string]struct{}, len(c.Governed)),
	}
	for _, r := range c.Governed {
		s.governed[r] = struct{}{}
	}
	if c.Viability != "" {
		cv, err := NewCELViability(c.Viability)
		if err != nil {
			return nil, fmt.Errorf("%w: viability: %v", ErrInvalidPolicy, err)
		}
		s.viability = cv
	}
	return s, nil
}

// ceilingFor substitutes the route ceiling for the global one when the route
// has an override. The two are never merged.
func (s *snapshot) ceilingFor(route string) Envelope {
	if env, ok := s.policy.Routes[route]; ok {
		return env
	}
	return s.policy.Global
}
