package tools

import (
	"context"
	"fmt"
	"testing"
)

type stubTool struct {
	name   string
	params []Param
	result string
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Parameters() []Param { return s.params }

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return s.result, s.err
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "deploy", result: "first"})
	r.Register(&stubTool{name: "deploy", result: "second"})

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	got, ok := r.Lookup("deploy")
	if !ok {
		t.Fatal("Lookup(deploy) not found")
	}
	res, _ := got.Execute(context.Background(), nil)
	if res != "second" {
		t.Errorf("kept tool result = %q, want second (last registration wins)", res)
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("ghost"); ok {
		t.Error("Lookup(ghost) = found, want missing")
	}
}

func TestRegistryForPrefix(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"infra_deploy", "INFRA_plan", "cost_report", "core_current_time"} {
		r.Register(&stubTool{name: name})
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"infra", []string{"INFRA_plan", "infra_deploy"}},
		{"INFRA_", []string{"INFRA_plan", "infra_deploy"}},
		{"cost", []string{"cost_report"}},
		{"missing", nil},
		{"", []string{"INFRA_plan", "core_current_time", "cost_report", "infra_deploy"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("prefix=%q", tt.prefix), func(t *testing.T) {
			got := r.ForPrefix(tt.prefix)
			if len(got) != len(tt.want) {
				t.Fatalf("ForPrefix(%q) returned %d tools, want %d", tt.prefix, len(got), len(tt.want))
			}
			for i, tool := range got {
				if tool.Name() != tt.want[i] {
					t.Errorf("tool[%d] = %q, want %q", i, tool.Name(), tt.want[i])
				}
			}
		})
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "zeta"})
	r.Register(&stubTool{name: "alpha"})

	all := r.All()
	if len(all) != 2 || all[0].Name() != "alpha" || all[1].Name() != "zeta" {
		t.Errorf("All() not sorted by name: %v, %v", all[0].Name(), all[1].Name())
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "temp"})
	r.Unregister("temp")
	r.Unregister("never-there")
	if r.Len() != 0 {
		t.Errorf("Len = %d after unregister, want 0", r.Len())
	}
}

func TestSchemaBuilding(t *testing.T) {
	tool := &stubTool{
		name: "demo",
		params: []Param{
			{Name: "region", Type: "string", Description: "target region", Required: true},
			{Name: "count", Type: "integer", Description: "instance count", Default: 1},
		},
	}
	schema := Schema(tool)
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) != 2 {
		t.Fatalf("properties = %v, want 2 entries", schema["properties"])
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "region" {
		t.Errorf("required = %v, want [region]", schema["required"])
	}
}

func TestValidator(t *testing.T) {
	tool := &stubTool{
		name: "deploy",
		params: []Param{
			{Name: "region", Type: "string", Description: "target region", Required: true},
			{Name: "count", Type: "integer", Description: "instance count"},
		},
	}
	v := NewValidator()

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"region": "westeurope", "count": 3}, false},
		{"missing required", map[string]any{"count": 3}, true},
		{"wrong type", map[string]any{"region": 42}, true},
		{"extra keys allowed", map[string]any{"region": "x", "note": "ok"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tool, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
