package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"

	"github.com/Mindburn-Labs/deedchain/pkg/anchor"
	"github.com/Mindburn-Labs/deedchain/pkg/attest"
)

// runAnchor implements `deedchain anchor`. The default segment is the whole
// chain.
func (a *app) runAnchor(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("anchor", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	var from, to int
	cmd.IntVar(&from, "from", 0, "First chain index (inclusive)")
	cmd.IntVar(&to, "to", -1, "Last chain index (exclusive, default chain length)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	chain, err := a.openChain(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() { _ = chain.Close() }()

	if to < 0 {
		to = chain.Len()
	}
	segment, err := chain.Segment(from, to)
	if err != nil {
		return a.fail("%v", err)
	}
	if len(segment) == 0 {
		return a.fail("nothing to anchor in [%d,%d)", from, to)
	}

	sink, err := anchor.NewSink(ctx, a.cfg.Anchor)
	if err != nil {
		return a.fail("anchor sink: %v", err)
	}
	published, err := anchor.NewPublisher(sink).Publish(ctx, segment, from)
	if err != nil {
		return a.fail("%v", err)
	}
	return a.printJSON(published)
}

// signingKey is the attestation key file: a base64 ed25519 seed.
type signingKey struct {
	Issuer string `json:"issuer"`
	KID    string `json:"kid"`
	Seed   string `json:"seed"`
}

// runAttest implements `deedchain attest`.
func (a *app) runAttest(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("attest", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	var id, keyPath string
	cmd.StringVar(&id, "id", "", "Record id to attest (REQUIRED)")
	cmd.StringVar(&keyPath, "key", "", "Signing key file (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if id == "" || keyPath == "" {
		return a.fail("--id and --key are required")
	}

	var key signingKey
	if err := readJSON(keyPath, &key); err != nil {
		return a.fail("%v", err)
	}
	seed, err := base64.StdEncoding.DecodeString(key.Seed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return a.fail("%s: seed is not a base64 ed25519 seed", keyPath)
	}

	chain, err := a.openChain(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() { _ = chain.Close() }()

	r, ok := chain.Get(id)
	if !ok {
		return a.fail("record %s not found", id)
	}
	attester := attest.NewAttester(attest.NewKeySetWithKey(key.KID, ed25519.NewKeyFromSeed(seed)), key.Issuer)
	token, err := attester.Attest(r)
	if err != nil {
		return a.fail("%v", err)
	}
	_, _ = fmt.Fprintln(a.stdout, token)
	return 0
}
