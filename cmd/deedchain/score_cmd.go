package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Mindburn-Labs/deedchain/pkg/anchor"
	"github.com/Mindburn-Labs/deedchain/pkg/attest"
	"github.com/Mindburn-Labs/deedchain/pkg/config"
	"github.com/Mindburn-Labs/deedchain/pkg/scoring"
	"github.com/Mindburn-Labs/deedchain/pkg/service"
)

// trustFile lists the attestation issuer and its public keys, base64 encoded.
type trustFile struct {
	Issuer string            `json:"issuer"`
	Keys   map[string]string `json:"keys"`
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func loadTrust(path string) (*attest.Attester, error) {
	var tf trustFile
	if err := readJSON(path, &tf); err != nil {
		return nil, err
	}
	keys := make(map[string]ed25519.PublicKey, len(tf.Keys))
	for kid, enc := range tf.Keys {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%s: key %s is not a base64 ed25519 public key", path, kid)
		}
		keys[kid] = ed25519.PublicKey(raw)
	}
	return attest.NewAttester(attest.NewVerifyOnlyKeySet(keys), tf.Issuer), nil
}

// runScore implements `deedchain score`.
func (a *app) runScore(ctx context.Context, args []string) int {
	cmd := flag.NewFlagSet("score", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)

	var actor, observations, attestations, trust string
	var skipAnchors bool
	cmd.StringVar(&actor, "actor", "", "Actor id (REQUIRED)")
	cmd.StringVar(&observations, "observations", "", "JSON file of agent state histories")
	cmd.StringVar(&attestations, "attestations", "", "JSON array of attestation tokens")
	cmd.StringVar(&trust, "trust", "", "Trusted attestation issuer file (required with --attestations)")
	cmd.BoolVar(&skipAnchors, "no-anchors", false, "Do not read published anchors")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if actor == "" {
		return a.fail("--actor is required")
	}
	if attestations != "" && trust == "" {
		return a.fail("--trust is required with --attestations")
	}

	weights, err := config.LoadWeights(a.cfg.WeightsPath)
	if err != nil {
		return a.fail("%v", err)
	}
	engine, err := scoring.NewEngine(weights)
	if err != nil {
		return a.fail("%v", err)
	}

	chain, err := a.openChain(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() { _ = chain.Close() }()

	var aux scoring.Signals
	if observations != "" {
		var obs []scoring.Observation
		if err := readJSON(observations, &obs); err != nil {
			return a.fail("%v", err)
		}
		aux = scoring.AuxFromObservations(obs, scoring.DefaultWindows())
	}
	if !skipAnchors {
		sink, err := anchor.NewSink(ctx, a.cfg.Anchor)
		if err != nil {
			return a.fail("anchor sink: %v", err)
		}
		aux.Anchored, err = anchor.NewPublisher(sink).Anchored(ctx, chain.Records())
		if err != nil {
			return a.fail("%v", err)
		}
	}
	if attestations != "" {
		attester, err := loadTrust(trust)
		if err != nil {
			return a.fail("%v", err)
		}
		var tokens []string
		if err := readJSON(attestations, &tokens); err != nil {
			return a.fail("%v", err)
		}
		aux.Attested = attester.VerifiedIDs(tokens, chain.ByActor(actor))
	}

	svc, err := service.New(chain, nil, engine, service.Config{})
	if err != nil {
		return a.fail("%v", err)
	}
	return a.printJSON(svc.Reputation(ctx, actor, aux))
}
