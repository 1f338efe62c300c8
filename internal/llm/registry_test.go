package llm

import (
	"context"
	"testing"
)

type fakeClient struct {
	name string
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) GetResponse(ctx context.Context, req Request) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (f *fakeClient) StreamResponse(ctx context.Context, req Request, onChunk StreamHandler) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func TestRegistryDefaultIsFirstRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeClient{name: "openai"})
	r.Register(&fakeClient{name: "anthropic"})

	c, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if c.Name() != "openai" {
		t.Errorf("default = %q, want openai", c.Name())
	}
}

func TestRegistrySetDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeClient{name: "openai"})
	r.Register(&fakeClient{name: "anthropic"})

	if err := r.SetDefault("anthropic"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	c, err := r.Get("")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name() != "anthropic" {
		t.Errorf("default = %q, want anthropic", c.Name())
	}

	if err := r.SetDefault("missing"); err == nil {
		t.Error("SetDefault(missing) should fail")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Error("Get(nope) should fail on empty registry")
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"valid object", `{"a":1,"b":"x"}`, 2},
		{"empty string", "", 0},
		{"whitespace", "   ", 0},
		{"malformed", `{"a":`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeArguments(tt.raw, "demo")
			if got == nil {
				t.Fatal("decodeArguments returned nil map")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}
