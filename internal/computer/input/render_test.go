package input

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

func TestResolveUsesCache(t *testing.T) {
	r := NewResolver(nil, nil)
	r.AddOrUpdateDef(protocol.InputDef{ID: "PORT", Kind: protocol.InputPromptString})
	if err := r.SetCached("PORT", "9090"); err != nil {
		t.Fatalf("SetCached: %v", err)
	}

	v, err := r.Resolve(context.Background(), "PORT")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != "9090" {
		t.Fatalf("expected cached 9090, got %v", v)
	}
}

func TestSetCachedUnknownIDFails(t *testing.T) {
	r := NewResolver(nil, nil)
	if err := r.SetCached("MISSING", "x"); err == nil {
		t.Fatalf("expected error setting unknown id")
	}
}

func TestRenderSplicesPlaceholderIntoText(t *testing.T) {
	r := NewResolver(nil, nil)
	r.AddOrUpdateDef(protocol.InputDef{ID: "PORT", Kind: protocol.InputPromptString})
	_ = r.SetCached("PORT", "9090")

	raw := json.RawMessage(`{"arg": "--port=${input:PORT}"}`)
	out, err := Render(context.Background(), r, raw, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal rendered: %v", err)
	}
	if got["arg"] != "--port=9090" {
		t.Fatalf("expected spliced value, got %v", got["arg"])
	}
}

func TestRenderPreservesTypeForExactPlaceholder(t *testing.T) {
	r := NewResolver(nil, nil)
	r.AddOrUpdateDef(protocol.InputDef{ID: "PORT", Kind: protocol.InputPromptString})
	_ = r.SetCached("PORT", float64(9090))

	raw := json.RawMessage(`{"port": "${input:PORT}"}`)
	out, err := Render(context.Background(), r, raw, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal rendered: %v", err)
	}
	if got["port"] != float64(9090) {
		t.Fatalf("expected verbatim numeric value 9090, got %v (%T)", got["port"], got["port"])
	}
}

func TestRenderUnknownIDLeavesPlaceholderInPlace(t *testing.T) {
	r := NewResolver(nil, nil)
	raw := json.RawMessage(`{"arg": "${input:UNKNOWN}"}`)
	out, err := Render(context.Background(), r, raw, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal rendered: %v", err)
	}
	if got["arg"] != "${input:UNKNOWN}" {
		t.Fatalf("expected unresolved placeholder left in place, got %v", got["arg"])
	}
}

func TestRenderIdempotentWithPopulatedCache(t *testing.T) {
	r := NewResolver(nil, nil)
	r.AddOrUpdateDef(protocol.InputDef{ID: "PORT", Kind: protocol.InputPromptString, Default: strPtr("8080")})
	_ = r.SetCached("PORT", "9090")

	raw := json.RawMessage(`{"arg": "${input:PORT}"}`)
	first, err := Render(context.Background(), r, raw, 0)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := Render(context.Background(), r, raw, 0)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected idempotent renders, got %s vs %s", first, second)
	}
}

func strPtr(s string) *string { return &s }
