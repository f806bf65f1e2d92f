package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/deedchain/pkg/anchor"
	"github.com/Mindburn-Labs/deedchain/pkg/budget"
	"github.com/Mindburn-Labs/deedchain/pkg/config"
	"github.com/Mindburn-Labs/deedchain/pkg/scoring"
	"github.com/Mindburn-Labs/deedchain/pkg/validator"
)

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// runDoctor checks that every configured component can be reached.
func (a *app) runDoctor(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	checks := []check{
		{"ledger", func(ctx context.Context) (string, error) {
			chain, err := a.openChain(ctx)
			if err != nil {
				return "", err
			}
			defer func() { _ = chain.Close() }()
			if err := validator.VerifyChain(chain.Records()); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %d deeds", a.cfg.LedgerBackend, chain.Len()), nil
		}},
		{"policy", func(ctx context.Context) (string, error) {
			p, err := config.LoadPolicy(a.cfg.PolicyPath)
			if err != nil {
				return "", err
			}
			return "version " + p.Version, nil
		}},
		{"content rules", func(ctx context.Context) (string, error) {
			rules, err := config.LoadRules(a.cfg.RulesPath)
			if err != nil {
				return "", err
			}
			if _, err := validator.NewContentValidator(rules); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d rules", len(rules)), nil
		}},
		{"weights", func(ctx context.Context) (string, error) {
			w, err := config.LoadWeights(a.cfg.WeightsPath)
			if err != nil {
				return "", err
			}
			if _, err := scoring.NewEngine(w); err != nil {
				return "", err
			}
			return "ok", nil
		}},
		{"usage store", func(ctx context.Context) (string, error) {
			if a.cfg.RedisAddr == "" {
				return "in-memory", nil
			}
			store := budget.NewRedisUsageStore(a.cfg.RedisAddr, a.cfg.RedisPassword, 0)
			defer func() { _ = store.Close() }()
			if err := store.Ping(ctx); err != nil {
				return "", err
			}
			return "redis " + a.cfg.RedisAddr, nil
		}},
		{"anchor sink", func(ctx context.Context) (string, error) {
			sink, err := anchor.NewSink(ctx, a.cfg.Anchor)
			if err != nil {
				return "", err
			}
			keys, err := sink.List(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %d anchors", a.cfg.Anchor.Type, len(keys)), nil
		}},
	}

	failed := 0
	for _, c := range checks {
		detail, err := c.run(ctx)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(a.stdout, "[FAIL] %-14s %v\n", c.name, err)
			continue
		}
		_, _ = fmt.Fprintf(a.stdout, "[ OK ] %-14s %s\n", c.name, detail)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
