package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext_CarriesCycleAndProvider(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	defer slog.SetDefault(prev)

	ctx := WithProvider(WithCycleID(context.Background(), "c-1"), "shark")
	WithFields(ctx, "batch", 3).Info("batch done")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if line["cycle_id"] != "c-1" {
		t.Errorf("cycle_id = %v, want c-1", line["cycle_id"])
	}
	if line["provider"] != "shark" {
		t.Errorf("provider = %v, want shark", line["provider"])
	}
	if line["batch"] != float64(3) {
		t.Errorf("batch = %v, want 3", line["batch"])
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if CycleID(ctx) != "" || Provider(ctx) != "" {
		t.Error("expected empty values from bare context")
	}
}
