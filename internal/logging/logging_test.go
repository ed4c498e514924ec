package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// withCapturedLogger routes the default logger into buf for one test.
func withCapturedLogger(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestWorkerLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	withCapturedLogger(t, &buf)

	WorkerLogger("write", 3).Debug("worker started")

	out := buf.String()
	for _, want := range []string{`"pool":"write"`, `"worker_id":3`, `"msg":"worker started"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	withCapturedLogger(t, &buf)

	Component("ingest").Info("a")
	DatasetLogger("r1", "enc1").Info("b")
	ChromLogger("r1", "enc1", "chr1").Info("c")

	out := buf.String()
	for _, want := range []string{
		`"component":"ingest"`,
		`"run_id":"r1"`, `"dataset":"enc1"`, `"chrom":"chr1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
