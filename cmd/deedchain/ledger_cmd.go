package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/deedchain/pkg/config"
	"github.com/Mindburn-Labs/deedchain/pkg/deed"
	"github.com/Mindburn-Labs/deedchain/pkg/service"
	"github.com/Mindburn-Labs/deedchain/pkg/validator"
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runSubmit implements `deedchain submit`.
func (a *app) runSubmit(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)

	var (
		actor, category, tags, targets, ethics, evidence string
		harm                                              bool
		roh, decay, bioDelta                              float64
	)
	cmd.StringVar(&actor, "actor", "", "Actor id (REQUIRED)")
	cmd.StringVar(&category, "category", "", "Deed category (REQUIRED)")
	cmd.StringVar(&tags, "tags", "", "Comma-separated tags")
	cmd.StringVar(&targets, "targets", "", "Comma-separated target ids")
	cmd.StringVar(&ethics, "ethics-flags", "", "Comma-separated ethics flags")
	cmd.StringVar(&evidence, "evidence", "", "Evidence JSON object")
	cmd.BoolVar(&harm, "harm", false, "Mark the deed as harmful")
	cmd.Float64Var(&roh, "roh", -1, "Reported RoH (enables the bioload check)")
	cmd.Float64Var(&decay, "decay", 0, "Reported decay")
	cmd.Float64Var(&bioDelta, "bioload-delta", 0, "Reported bioload delta")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if actor == "" || category == "" {
		return a.fail("--actor and --category are required")
	}

	in := deed.Intent{
		ActorID:     actor,
		TargetIDs:   splitList(targets),
		Category:    deed.ParseCategory(category),
		Tags:        splitList(tags),
		EthicsFlags: splitList(ethics),
		HarmFlag:    harm,
	}
	if evidence != "" {
		in.Evidence = json.RawMessage(evidence)
	}
	var bio *validator.Bioload
	if roh >= 0 {
		bio = &validator.Bioload{Delta: bioDelta, RoH: roh, Decay: decay}
	}

	rules, err := config.LoadRules(a.cfg.RulesPath)
	if err != nil {
		return a.fail("%v", err)
	}
	chain, err := a.openChain(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() { _ = chain.Close() }()

	svc, err := service.New(chain, nil, nil, service.Config{
		Rules:       rules,
		AppendRPS:   a.cfg.AppendRPS,
		AppendBurst: a.cfg.AppendBurst,
	})
	if err != nil {
		return a.fail("%v", err)
	}

	ctx, done := a.obs.TrackOperation(ctx, "deedchain.submit", attribute.String("deed.category", category))
	r, err := svc.Submit(ctx, in, bio)
	done(err)
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Rejected: %v\n", err)
		return 1
	}
	return a.printJSON(r)
}

type verifyReport struct {
	Valid    bool   `json:"valid"`
	Length   int    `json:"length"`
	TailHash string `json:"tail_hash"`
	Error    string `json:"error,omitempty"`
}

// runVerify implements `deedchain verify`.
func (a *app) runVerify(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	chain, err := a.openChain(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() { _ = chain.Close() }()

	records := chain.Records()
	_, done := a.obs.TrackOperation(ctx, "deedchain.verify", attribute.Int("deed.count", len(records)))
	verr := validator.ValidateLedger(records)
	done(verr)

	report := verifyReport{Valid: verr == nil, Length: len(records), TailHash: chain.TailHash()}
	if verr != nil {
		report.Error = verr.Error()
	}

	if jsonOutput {
		if code := a.printJSON(report); code != 0 {
			return code
		}
	} else if report.Valid {
		_, _ = fmt.Fprintf(a.stdout, "OK: %d deeds, tail %s\n", report.Length, report.TailHash)
	} else {
		_, _ = fmt.Fprintf(a.stdout, "INVALID: %s\n", report.Error)
	}
	if !report.Valid {
		return 1
	}
	return 0
}

func (a *app) printJSON(v any) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return a.fail("encode output: %v", err)
	}
	return 0
}
