package slog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/google/go-cmp/cmp"
)

func ExampleNew() {
	logger := slog.New(slog.NewGoogleCloudHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	logger.Info("omit", "collection", "docs")
}

func ExampleLogger() {
	log := slog.Default().With("collection", "docs")
	log.Debug("query sent", "strategy", "select")
	log.Info("query done", "rows", 10)
}

func TestLoadConfig(t *testing.T) {
	type testcase struct {
		name   string
		level  string
		format string
		want   slog.Config
	}

	for _, tc := range []testcase{
		{
			name: "defaults",
			want: slog.Config{Level: slog.DefaultLevel, Format: slog.DefaultFormat},
		},
		{
			name:   "debug json",
			level:  "debug",
			format: "json",
			want:   slog.Config{Level: slog.LevelDebug, Format: slog.FormatJSON},
		},
		{
			name:   "case insensitive",
			level:  "WARN",
			format: "GCloud",
			want:   slog.Config{Level: slog.LevelWarn, Format: slog.FormatGcloud},
		},
		{
			name:  "disable",
			level: "disable",
			want:  slog.Config{Level: slog.LevelDisable, Format: slog.DefaultFormat},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("VELESQL_LOG_LEVEL", tc.level)
			t.Setenv("VELESQL_LOG_FMT", tc.format)

			got, err := slog.LoadConfig("VELESQL")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("VELESQL_LOG_LEVEL", "loud")
	t.Setenv("VELESQL_LOG_FMT", "xml")

	cfg, err := slog.LoadConfig("VELESQL")
	if err == nil {
		t.Fatalf("got config %v; want error", cfg)
	}
	for _, want := range []string{`"loud"`, `"xml"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q doesn't mention %s", err, want)
		}
	}
}

func TestGoogleCloudHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewGoogleCloudHandler(&buf, nil))
	log.Info("request done", "collection", "docs", "http_request", map[string]any{
		"method":      "POST",
		"url":         "http://localhost:8080/query",
		"status_code": 200,
		"trace":       "abc",
	})

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	delete(got, "time")
	want := map[string]any{
		"severity":   "INFO",
		"message":    "request done",
		"collection": "docs",
		"httpRequest": map[string]any{
			"requestMethod": "POST",
			"requestUrl":    "http://localhost:8080/query",
			"status":        float64(200),
			"trace":         "abc",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigureOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := slog.Configure(slog.Config{Level: slog.LevelInfo, Format: slog.FormatJSON, Output: &buf}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = slog.Configure(slog.Config{Level: slog.DefaultLevel, Format: slog.DefaultFormat})
	})

	slog.Debug("omitted")
	slog.Info("kept", "collection", "docs")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("want a single JSON record, got %q: %v", buf.String(), err)
	}
	if got["msg"] != "kept" || got["collection"] != "docs" {
		t.Fatalf("unexpected record: %v", got)
	}

	if err := slog.Configure(slog.Config{Format: "xml"}); err == nil {
		t.Fatal("want error for unknown format")
	}
}

func TestLoggerFromContext(t *testing.T) {
	t.Parallel()

	if got := slog.FromCtx(context.Background()); got == nil {
		t.Fatal("want default logger, got nil")
	}

	want := slog.Default().With("collection", "docs")
	ctx := slog.NewContext(context.Background(), want)
	if got := slog.FromCtx(ctx); got != want {
		t.Fatalf("got logger %p; want %p", got, want)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"invalid", "trace", "infos"} {
		if _, err := slog.ParseLevel(s); err == nil {
			t.Errorf("ParseLevel(%q): want error", s)
		}
		if _, err := slog.ParseFormat(s); err == nil {
			t.Errorf("ParseFormat(%q): want error", s)
		}
	}
}
