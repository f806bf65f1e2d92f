package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/deedchain/pkg/config"
	"github.com/Mindburn-Labs/deedchain/pkg/ledger"
	"github.com/Mindburn-Labs/deedchain/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. Exit codes: 0 success, 1 the checked
// thing failed (invalid chain, rejected admission), 2 usage or runtime error.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger, err := observability.NewLogger(cfg.LogLevel, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Insecure = true
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	app := &app{cfg: cfg, obs: provider, stdout: stdout, stderr: stderr}

	switch args[1] {
	case "submit":
		return app.runSubmit(ctx, args[2:])
	case "verify":
		return app.runVerify(ctx, args[2:])
	case "score":
		return app.runScore(ctx, args[2:])
	case "anchor":
		return app.runAnchor(ctx, args[2:])
	case "attest":
		return app.runAttest(ctx, args[2:])
	case "admit":
		return app.runAdmit(ctx, args[2:])
	case "policy-check":
		return app.runPolicyCheck(args[2:])
	case "doctor":
		return app.runDoctor(ctx)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

type app struct {
	cfg    *config.Config
	obs    *observability.Provider
	stdout io.Writer
	stderr io.Writer
}

func (a *app) fail(format string, args ...any) int {
	_, _ = fmt.Fprintf(a.stderr, "Error: "+format+"\n", args...)
	return 2
}

// openChain opens the configured ledger backend.
func (a *app) openChain(ctx context.Context) (*ledger.Chain, error) {
	var backend ledger.Backend
	switch a.cfg.LedgerBackend {
	case config.BackendMemory:
		backend = ledger.NewMemoryBackend()
	case config.BackendFile:
		if err := os.MkdirAll(filepath.Dir(a.cfg.LedgerPath), 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		fb, err := ledger.NewFileBackend(a.cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		backend = fb
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.LedgerPath), 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		sb, err := ledger.OpenSQL(ctx, "sqlite", a.cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		backend = sb
	case config.BackendPostgres:
		sb, err := ledger.OpenSQL(ctx, "postgres", a.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		backend = sb
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", a.cfg.LedgerBackend)
	}
	return ledger.Open(ctx, backend)
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "deedchain: tamper-evident deed ledger and resource admission")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "USAGE:")
	_, _ = fmt.Fprintln(w, "  deedchain <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "COMMANDS:")
	for _, c := range [][2]string{
		{"submit", "Validate and append a deed (--actor, --category, --tags, --evidence)"},
		{"verify", "Verify chain integrity and content (--json)"},
		{"score", "Advisory reputation for an actor (--actor, --observations, --attestations)"},
		{"anchor", "Publish a Merkle root of a chain segment (--from, --to)"},
		{"attest", "Sign an attestation for a record (--id, --key)"},
		{"admit", "Run a budget admission (--subject, --route, --demand)"},
		{"policy-check", "Validate a policy file (--file)"},
		{"doctor", "Check configuration and backends"},
	} {
		_, _ = fmt.Fprintf(w, "  %-14s %s\n", c[0], c[1])
	}
}
