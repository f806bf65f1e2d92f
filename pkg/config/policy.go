package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/deedchain/pkg/budget"
	"github.com/Mindburn-Labs/deedchain/pkg/validator"
)

//go:embed schemas/policy.schema.json
var policySchemaJSON string

const policySchemaURL = "https://deedchain.schemas.local/budget/policy.schema.json"

var (
	policySchemaOnce sync.Once
	policySchema     *jsonschema.Schema
	policySchemaErr  error
)

func compiledPolicySchema() (*jsonschema.Schema, error) {
	policySchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(policySchemaURL, bytes.NewReader([]byte(policySchemaJSON))); err != nil {
			policySchemaErr = fmt.Errorf("policy schema load failed: %w", err)
			return
		}
		policySchema, policySchemaErr = c.Compile(policySchemaURL)
	})
	return policySchema, policySchemaErr
}

// yamlToJSON re-encodes a YAML document as JSON so it can be schema
// validated and decoded with the json struct tags.
func yamlToJSON(data []byte) ([]byte, any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("convert yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, err
	}
	return raw, generic, nil
}

// ParsePolicy validates a YAML (or JSON) policy document against the
// embedded schema and returns the decoded, validated policy.
func ParsePolicy(data []byte) (*budget.Policy, error) {
	raw, doc, err := yamlToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", budget.ErrInvalidPolicy, err)
	}
	schema, err := compiledPolicySchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: schema validation failed: %v", budget.ErrInvalidPolicy, err)
	}

	var p budget.Policy
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", budget.ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicy reads a policy file. An empty path yields budget.DefaultPolicy.
func LoadPolicy(path string) (*budget.Policy, error) {
	if path == "" {
		return budget.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadRules reads a YAML list of content rules. An empty path yields none.
func LoadRules(path string) ([]validator.Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var doc struct {
		Rules []validator.Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parse rules: %w", path, err)
	}
	for i, r := range doc.Rules {
		if r.Name == "" || r.Expr == "" {
			return nil, fmt.Errorf("%s: rule %d needs a name and an expr", path, i)
		}
	}
	return doc.Rules, nil
}
