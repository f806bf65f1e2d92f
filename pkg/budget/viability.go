package budget

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Viability decides whether a demand lies inside the admissible region.
// The kernel calls it while the subject's usage is held, so it should not
// block for long.
type Viability interface {
	Admissible(ctx context.Context, demand Envelope) (bool, error)
}

// ViabilityFunc adapts a function to Viability.
type ViabilityFunc func(ctx context.Context, demand Envelope) (bool, error)

func (f ViabilityFunc) Admissible(ctx context.Context, demand Envelope) (bool, error) {
	return f(ctx, demand)
}

// CELViability evaluates a boolean CEL expression over `demand`, a
// map(string, double). Missing dimensions read as absent, so expressions
// should guard with has() or the `in` operator.
//
//	!("power" in demand) || demand["power"] * 0.9 <= 700.0
type CELViability struct {
	expr string
	prg  cel.Program
}

func NewCELViability(expr string) (*CELViability, error) {
	env, err := cel.NewEnv(
		cel.Variable("demand", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return &CELViability{expr: expr, prg: prg}, nil
}

func (v *CELViability) String() string { return v.expr }

func (v *CELViability) Admissible(ctx context.Context, demand Envelope) (bool, error) {
	out, _, err := v.prg.ContextEval(ctx, map[string]any{"demand": map[string]float64(demand.Clone())})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("eval: result not bool")
	}
	return ok, nil
}
