package logging

import (
	"context"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}

	ctx = WithAgentID(ctx, "cost-optimizer")
	if got := GetAgentID(ctx); got != "cost-optimizer" {
		t.Errorf("GetAgentID() = %q, want %q", got, "cost-optimizer")
	}

	ctx = WithIncidentID(ctx, "INC-42")
	if got := GetIncidentID(ctx); got != "INC-42" {
		t.Errorf("GetIncidentID() = %q, want %q", got, "INC-42")
	}

	ctx = WithModelID(ctx, "anthropic.claude-3-haiku-20240307-v1:0")
	if got := GetModelID(ctx); got != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("GetModelID() = %q", got)
	}
}

func TestContextKeysMissing(t *testing.T) {
	ctx := context.Background()
	if got := GetIncidentID(ctx); got != "" {
		t.Errorf("GetIncidentID() on empty context = %q", got)
	}
	if attrs := Attrs(ctx); len(attrs) != 0 {
		t.Errorf("Attrs() on empty context = %v", attrs)
	}
}

func TestAttrsOrder(t *testing.T) {
	ctx := WithModelID(context.Background(), "m")
	ctx = WithRequestID(ctx, "r")
	ctx = WithIncidentID(ctx, "i")

	attrs := Attrs(ctx)
	want := []string{"request_id", "incident_id", "model_id"}
	if len(attrs) != len(want) {
		t.Fatalf("Attrs() len = %d, want %d", len(attrs), len(want))
	}
	for i, key := range want {
		if attrs[i].Key != key {
			t.Errorf("attrs[%d].Key = %q, want %q", i, attrs[i].Key, key)
		}
	}
}
