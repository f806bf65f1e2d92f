package budget

import (
	"context"
	"math"
	"sync/atomic"
)

// RiskSource reports the live, route-independent risk indicator.
type RiskSource interface {
	CurrentRisk(ctx context.Context) (float64, error)
}

// RiskGauge is a RiskSource fed by an external monitor.
type RiskGauge struct {
	bits atomic.Uint64
}

func NewRiskGauge(initial float64) *RiskGauge {
	g := &RiskGauge{}
	g.Set(initial)
	return g
}

func (g *RiskGauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

func (g *RiskGauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

func (g *RiskGauge) CurrentRisk(context.Context) (float64, error) { return g.Value(), nil }
