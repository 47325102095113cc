package logger

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildAuditLoggerRequiresPath(t *testing.T) {
	if _, err := buildAuditLogger(AuditConfig{Enabled: true}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestBuildAuditLoggerWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	audit, err := buildAuditLogger(AuditConfig{Enabled: true, Path: dir + "/audit/audit.log"})
	if err != nil {
		t.Fatalf("buildAuditLogger: %v", err)
	}
	audit.Info("customer_registered", "email", "a@example.com")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestNamedAndAuditFallback(t *testing.T) {
	if L() == nil || Named("agent") == nil || Audit() == nil {
		t.Fatalf("loggers should never be nil")
	}
}
