package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks tool arguments against each tool's parameter
// schema before execution. Compiled schemas are cached per tool and
// recompiled if the tool's schema changes (re-registration).
type Validator struct {
	mu    sync.Mutex
	cache map[string]*compiledSchema
}

type compiledSchema struct {
	raw    string
	schema *jsonschema.Schema
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*compiledSchema)}
}

// Validate checks args against the tool's parameter schema.
func (v *Validator) Validate(t Tool, args map[string]any) error {
	sch, err := v.compiled(t)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	// The validator expects decoded JSON values; round-trip to
	// normalize Go-native types (int vs float64 etc).
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments for %s: %w", t.Name(), err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode arguments for %s: %w", t.Name(), err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("arguments for %s: %w", t.Name(), err)
	}
	return nil
}

func (v *Validator) compiled(t Tool) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(Schema(t))
	if err != nil {
		return nil, err
	}
	key := t.Name()

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.cache[key]; ok && c.raw == string(raw) {
		return c.schema, nil
	}

	compiler := jsonschema.NewCompiler()
	url := "inmem://tools/" + key + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	v.cache[key] = &compiledSchema{raw: string(raw), schema: sch}
	return sch, nil
}
