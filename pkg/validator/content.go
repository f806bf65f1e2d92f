package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// ValidateContent rejects a record carrying a harm flag or any ethics flag.
// Both checks are unconditional and independent of chain position.
func ValidateContent(r deed.Record) error {
	return checkFlags(r.HarmFlag, r.EthicsFlags)
}

// ValidateDraft applies ValidateContent to a draft before it is sealed.
func ValidateDraft(d deed.Draft) error {
	return checkFlags(d.HarmFlag, d.EthicsFlags)
}

func checkFlags(harm bool, ethics []string) error {
	if harm {
		return &PolicyError{Kind: HarmProhibited, Detail: "life harm flag set"}
	}
	if len(ethics) > 0 {
		return &PolicyError{Kind: EthicsViolation, Flags: append([]string(nil), ethics...)}
	}
	return nil
}

// Biophysical limits for a submission.
const (
	MaxRoH   = 0.30
	MaxDecay = 1.0
)

// Bioload carries the biophysical metrics reported alongside a submission.
type Bioload struct {
	Delta float64 `json:"bioload_delta" yaml:"bioload_delta"`
	RoH   float64 `json:"roh" yaml:"roh"`
	Decay float64 `json:"decay" yaml:"decay"`
}

// CheckBioload rejects metrics outside the biophysical envelope. A NaN
// reading is outside it.
func CheckBioload(b Bioload) error {
	if math.IsNaN(b.RoH) || math.IsNaN(b.Decay) {
		return &PolicyError{Kind: BioloadViolation, Detail: fmt.Sprintf("roh %v, decay %v: not a number", b.RoH, b.Decay)}
	}
	if b.RoH > MaxRoH {
		return &PolicyError{Kind: BioloadViolation, Detail: fmt.Sprintf("roh %.3f exceeds %.2f", b.RoH, MaxRoH)}
	}
	if b.Decay > MaxDecay {
		return &PolicyError{Kind: BioloadViolation, Detail: fmt.Sprintf("decay %.3f exceeds %.2f", b.Decay, MaxDecay)}
	}
	return nil
}

// Rule is a named CEL expression over the variable `deed` that must
// evaluate to true for a draft to be admitted.
type Rule struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

// ContentValidator runs the fixed harm/ethics checks, the optional
// biophysical gate and any configured CEL rules, in that order.
type ContentValidator struct {
	env    *cel.Env
	rules  []Rule
	logger *slog.Logger

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewContentValidator compiles rules eagerly so a bad rule fails at
// construction rather than on the first submission.
func NewContentValidator(rules []Rule) (*ContentValidator, error) {
	env, err := cel.NewEnv(
		cel.Variable("deed", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	v := &ContentValidator{
		env:      env,
		rules:    append([]Rule(nil), rules...),
		logger:   slog.Default().With("component", "validator"),
		prgCache: make(map[string]cel.Program),
	}
	for _, r := range v.rules {
		if _, err := v.program(r.Expr); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return v, nil
}

func (v *ContentValidator) program(expr string) (cel.Program, error) {
	v.mu.RLock()
	prg, hit := v.prgCache[expr]
	v.mu.RUnlock()
	if hit {
		return prg, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if prg, hit = v.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := v.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	p, err := v.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	v.prgCache[expr] = p
	return p, nil
}

// Check validates d. bio may be nil when no metrics were reported.
func (v *ContentValidator) Check(ctx context.Context, d deed.Draft, bio *Bioload) error {
	if err := ValidateDraft(d); err != nil {
		return err
	}
	if bio != nil {
		if err := CheckBioload(*bio); err != nil {
			return err
		}
	}
	if len(v.rules) == 0 {
		return nil
	}

	activation, err := draftActivation(d)
	if err != nil {
		return &PolicyError{Kind: RuleViolation, Detail: err.Error()}
	}
	input := map[string]any{"deed": activation}
	for _, r := range v.rules {
		prg, err := v.program(r.Expr)
		if err != nil {
			return &PolicyError{Kind: RuleViolation, Rule: r.Name, Detail: err.Error()}
		}
		out, _, err := prg.ContextEval(ctx, input)
		if err != nil {
			// Fail closed: a rule that cannot be evaluated rejects.
			return &PolicyError{Kind: RuleViolation, Rule: r.Name, Detail: fmt.Sprintf("eval: %v", err)}
		}
		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			v.logger.InfoContext(ctx, "content rule rejected draft", "rule", r.Name, "id", d.ID, "actor", d.ActorID)
			return &PolicyError{Kind: RuleViolation, Rule: r.Name}
		}
	}
	return nil
}

func draftActivation(d deed.Draft) (map[string]any, error) {
	evidence := map[string]any{}
	if len(d.Evidence) > 0 {
		if err := json.Unmarshal(d.Evidence, &evidence); err != nil {
			return nil, fmt.Errorf("evidence is not a JSON object: %w", err)
		}
		if evidence == nil {
			evidence = map[string]any{}
		}
	}
	return map[string]any{
		"id":           d.ID,
		"timestamp":    d.Timestamp,
		"actor_id":     d.ActorID,
		"target_ids":   orEmpty(d.TargetIDs),
		"category":     string(d.Category),
		"tags":         orEmpty(d.Tags),
		"evidence":     evidence,
		"ethics_flags": orEmpty(d.EthicsFlags),
		"harm_flag":    d.HarmFlag,
	}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
