package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("fracd", "GET", "/health", 200, 12*time.Millisecond)
	RecordCodec("accounts", "pack", 64, nil)
	RecordCodec("accounts", "unpack", -1, errors.New("boom"))
	RecordRegistration("accounts", "created", 2)

	if got := testutil.ToFloat64(codecOps.WithLabelValues("accounts", "unpack", "error")); got < 1 {
		t.Fatalf("expected an error count, got %v", got)
	}
	if got := testutil.ToFloat64(schemaVersions.WithLabelValues("accounts")); got != 2 {
		t.Fatalf("expected 2 versions, got %v", got)
	}
}

func TestInitLoggerTo(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	logger := InitLoggerTo(&buf, LogOptions{App: "fracd-test", Level: zerolog.InfoLevel})
	logger.Debug().Msg("hidden")
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "fracd-test") {
		t.Fatalf("expected app tag in %q", buf.String())
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line leaked past info level: %q", buf.String())
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected no color codes: %q", buf.String())
	}
}
