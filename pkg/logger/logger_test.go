package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextAddsRunID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithRunID(context.Background(), "run-42")
	FromContext(ctx).Info("pipeline executed")

	if !strings.Contains(buf.String(), `"run_id":"run-42"`) {
		t.Fatalf("missing run id in %s", buf.String())
	}
	if RunIDFromContext(ctx) != "run-42" {
		t.Fatalf("RunIDFromContext = %q", RunIDFromContext(ctx))
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("warn") != slog.LevelWarn {
		t.Error("warn not parsed")
	}
	if parseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}
