package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestRequestLoggerCarriesCodecContext(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware("fracd-test"))
	r.POST("/schemas/:name/types/:type/unpack", func(c *gin.Context) {
		c.String(http.StatusUnprocessableEntity, "bad")
	})
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/schemas/accounts/types/Account/unpack?version=2&strict=true", strings.NewReader("0000"))
	r.ServeHTTP(httptest.NewRecorder(), req)
	line := logLine(t, &buf)
	want := map[string]any{
		"message": "codec_request",
		"level":   "warn",
		"schema":  "accounts",
		"type":    "Account",
		"op":      "unpack",
		"version": "2",
		"strict":  "true",
		"route":   "/schemas/:name/types/:type/unpack",
	}
	for k, v := range want {
		if line[k] != v {
			t.Fatalf("field %s = %v, want %v (line %v)", k, line[k], v, line)
		}
	}
	if line["request_bytes"] != float64(4) {
		t.Fatalf("request_bytes = %v", line["request_bytes"])
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	line = logLine(t, &buf)
	if line["message"] != "http_request" || line["schema"] != nil || line["level"] != "info" {
		t.Fatalf("unexpected health line %v", line)
	}
}
