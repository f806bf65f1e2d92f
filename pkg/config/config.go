// Package config loads process configuration from the environment and
// policy, weight and rule documents from YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Mindburn-Labs/deedchain/pkg/anchor"
)

// Ledger backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds process configuration.
type Config struct {
	LedgerBackend string
	LedgerPath    string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string

	PolicyPath  string
	WeightsPath string
	RulesPath   string

	Anchor anchor.SinkConfig

	LogLevel     string
	OTLPEndpoint string

	AppendRPS   float64
	AppendBurst int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LedgerBackend: getenv("DEEDCHAIN_LEDGER_BACKEND", BackendFile),
		LedgerPath:    getenv("DEEDCHAIN_LEDGER_PATH", "data/ledger.jsonl"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PolicyPath:    os.Getenv("DEEDCHAIN_POLICY_PATH"),
		WeightsPath:   os.Getenv("DEEDCHAIN_WEIGHTS_PATH"),
		RulesPath:     os.Getenv("DEEDCHAIN_RULES_PATH"),
		Anchor: anchor.SinkConfig{
			Type:     anchor.SinkType(getenv("DEEDCHAIN_ANCHOR_SINK", string(anchor.SinkFile))),
			Dir:      getenv("DEEDCHAIN_ANCHOR_DIR", "data/anchors"),
			Bucket:   os.Getenv("DEEDCHAIN_ANCHOR_BUCKET"),
			Prefix:   os.Getenv("DEEDCHAIN_ANCHOR_PREFIX"),
			Region:   getenv("DEEDCHAIN_ANCHOR_REGION", os.Getenv("AWS_REGION")),
			Endpoint: os.Getenv("DEEDCHAIN_ANCHOR_ENDPOINT"),
		},
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	switch cfg.LedgerBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres ledger backend")
		}
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.LedgerBackend)
	}

	var err error
	if cfg.AppendRPS, err = getFloat("DEEDCHAIN_APPEND_RPS", 0); err != nil {
		return nil, err
	}
	if cfg.AppendBurst, err = getInt("DEEDCHAIN_APPEND_BURST", 5); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s: invalid non-negative number %q", key, raw)
	}
	return v, nil
}

func getInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s: invalid non-negative integer %q", key, raw)
	}
	return v, nil
}
