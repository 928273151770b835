package telemetry

import (
	"context"
	"testing"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "animcache", "  ")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, "animcache", "http://127.0.0.1:4318")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	// Nothing was recorded, so shutdown has nothing to export.
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown returned %v", err)
	}
}
