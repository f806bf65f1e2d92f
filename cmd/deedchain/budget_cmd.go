package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/deedchain/pkg/budget"
	"github.com/Mindburn-Labs/deedchain/pkg/config"
)

// parseDemand reads "power=100,kwh=2".
func parseDemand(s string) (budget.Envelope, error) {
	out := budget.Envelope{}
	for _, part := range splitList(s) {
		dim, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("demand %q: want dimension=value", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("demand %q: %w", part, err)
		}
		out[strings.TrimSpace(dim)] = v
	}
	return out, nil
}

func (a *app) newKernel(ctx context.Context, risk float64) (*budget.Kernel, func(), error) {
	policy, err := config.LoadPolicy(a.cfg.PolicyPath)
	if err != nil {
		return nil, nil, err
	}
	opts := []budget.Option{budget.WithRiskSource(budget.NewRiskGauge(risk))}
	cleanup := func() {}
	if a.cfg.RedisAddr != "" {
		store := budget.NewRedisUsageStore(a.cfg.RedisAddr, a.cfg.RedisPassword, 0)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
		}
		opts = append(opts, budget.WithStore(store))
		cleanup = func() { _ = store.Close() }
	}
	k, err := budget.NewKernel(policy, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return k, cleanup, nil
}

// runAdmit implements `deedchain admit`. Usage persists across invocations
// only with a Redis usage store.
func (a *app) runAdmit(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("admit", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	var subject, route, demandSpec string
	var risk float64
	var reset bool
	cmd.StringVar(&subject, "subject", "", "Subject (REQUIRED)")
	cmd.StringVar(&route, "route", "", "Route (REQUIRED)")
	cmd.StringVar(&demandSpec, "demand", "", "Demand, e.g. power=100,kwh=2")
	cmd.Float64Var(&risk, "risk", 0, "Current live risk indicator")
	cmd.BoolVar(&reset, "reset", false, "Reset the subject's window instead of admitting")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if subject == "" {
		return a.fail("--subject is required")
	}

	kernel, cleanup, err := a.newKernel(ctx, risk)
	if err != nil {
		return a.fail("%v", err)
	}
	defer cleanup()

	if reset {
		if err := kernel.ResetWindow(ctx, subject); err != nil {
			return a.fail("%v", err)
		}
		_, _ = fmt.Fprintf(a.stdout, "window reset for %s\n", subject)
		return 0
	}
	if route == "" {
		return a.fail("--route is required")
	}
	demand, err := parseDemand(demandSpec)
	if err != nil {
		return a.fail("%v", err)
	}

	receipt, err := kernel.CheckAndCommit(ctx, subject, route, demand)
	if err != nil {
		if kind := budget.KindOf(err); kind != "" {
			_, _ = fmt.Fprintf(a.stdout, "REJECTED %s: %v\n", kind, err)
			return 1
		}
		return a.fail("%v", err)
	}
	return a.printJSON(receipt)
}

// runPolicyCheck implements `deedchain policy-check`.
func (a *app) runPolicyCheck(args []string) int {
	cmd := flag.NewFlagSet("policy-check", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	var file string
	cmd.StringVar(&file, "file", a.cfg.PolicyPath, "Policy file (default $DEEDCHAIN_POLICY_PATH)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		return a.fail("--file is required")
	}

	policy, err := config.LoadPolicy(file)
	if err != nil {
		_, _ = fmt.Fprintf(a.stdout, "INVALID: %v\n", err)
		return 1
	}
	if _, err := budget.NewKernel(policy); err != nil {
		_, _ = fmt.Fprintf(a.stdout, "INVALID: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(a.stdout, "OK: policy %s, %d routes, %d governed, %d minimums\n",
		policy.Version, len(policy.Routes), len(policy.Governed), len(policy.Minimums))
	return 0
}
