package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestWithBuildID(t *testing.T) {
	ctx := WithBuildID(context.Background(), "build-123")

	if lc := GetContext(ctx); lc.BuildID != "build-123" {
		t.Errorf("expected build-123, got %s", lc.BuildID)
	}
}

func TestContextValuesAccumulate(t *testing.T) {
	ctx := WithBuildID(context.Background(), "b1")
	ctx = WithProfile(ctx, "dev")
	ctx = WithCategory(ctx, "styles")

	lc := GetContext(ctx)
	if lc.BuildID != "b1" || lc.Profile != "dev" || lc.Category != "styles" {
		t.Errorf("unexpected log context: %+v", lc)
	}
}

func TestNewBuildIDIsUUID(t *testing.T) {
	id := NewBuildID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid, got %q: %v", id, err)
	}
	if id == NewBuildID() {
		t.Fatal("expected distinct build ids")
	}
}

func TestInfoContextIncludesContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	ctx := WithCategory(WithProfile(context.Background(), "release"), "scripts")
	InfoContext(ctx, "stage finished", slog.Int("files", 2))

	out := buf.String()
	for _, want := range []string{"profile=release", "category=scripts", "files=2", "stage finished"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output %q", want, out)
		}
	}
}
