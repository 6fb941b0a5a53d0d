package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildEnvelopeSchema returns the JSON-Schema (draft 2020-12 subset) for an
// inbound file: an array of transaction objects. Unknown fields are ignored, so
// additionalProperties stays open. Field-level business rules (patterns, length
// bounds, enum membership) are the validator's job, not the schema's: the schema
// only decides whether the file has the expected shape at all.
func buildEnvelopeSchema() map[string]any {
	props := map[string]any{
		"guid":             map[string]any{"type": "string"},
		"accountNameOwner": map[string]any{"type": "string"},
		"accountType":      map[string]any{"type": "string"},
		"transactionType":  map[string]any{"type": "string"},
		"description":      map[string]any{"type": "string"},
		"category":         map[string]any{"type": "string"},
		"amount":           map[string]any{"type": "number"},
		"transactionDate":  map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"transactionState": map[string]any{"type": "string"},
		"notes":            map[string]any{"type": "string"},
		"activeStatus":     map[string]any{"type": "boolean"},
	}
	required := []string{
		"guid", "accountNameOwner", "accountType", "transactionType",
		"description", "amount", "transactionDate", "transactionState",
	}

	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// compileEnvelopeSchema compiles the envelope schema once at construction time.
func compileEnvelopeSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(buildEnvelopeSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
