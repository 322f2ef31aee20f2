package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/fracpack/internal/compat"
	"github.com/danmuck/fracpack/internal/config"
	"github.com/danmuck/fracpack/internal/registry"
	"github.com/danmuck/fracpack/internal/schema"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

const adaHex = "0C00" + "0700000000000000" + "04000000" + "03000000616461"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New(config.DefaultServiceConfig(), registry.New(nil, compat.Upgrade))
}

func accountsDoc(t *testing.T, extra ...schema.Member) []byte {
	t.Helper()
	members := append([]schema.Member{
		schema.M("id", schema.U64()),
		schema.M("name", schema.String()),
	}, extra...)
	s := schema.New()
	s.Insert("Account", schema.Object(members...))
	doc, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	return doc
}

func do(t *testing.T, s *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)

	s := newTestServer(t)
	rr := do(t, s, http.MethodGet, "/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if body := decodeBody(t, rr); body["status"] != "ok" || body["service"] != "fracd" {
		t.Fatalf("unexpected health body %#v", body)
	}

	expectStatus(t, do(t, s, http.MethodGet, "/ready", "", nil), http.StatusServiceUnavailable)
	s.SetReady(true)
	expectStatus(t, do(t, s, http.MethodGet, "/ready", "", nil), http.StatusOK)
	expectStatus(t, do(t, s, http.MethodGet, "/metrics", "", nil), http.StatusOK)
}

func TestSchemaLifecycle(t *testing.T) {
	testlog.Start(t)

	s := newTestServer(t)
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusCreated)
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusOK)

	rr := do(t, s, http.MethodGet, "/schemas", "", nil)
	expectStatus(t, rr, http.StatusOK)
	list, _ := decodeBody(t, rr)["schemas"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one schema, got %#v", list)
	}

	rr = do(t, s, http.MethodGet, "/schemas/accounts?version=1", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if body := decodeBody(t, rr); body["version"] != float64(1) {
		t.Fatalf("unexpected version %#v", body["version"])
	}
	expectStatus(t, do(t, s, http.MethodGet, "/schemas/accounts?version=9", "", nil), http.StatusNotFound)
	expectStatus(t, do(t, s, http.MethodGet, "/schemas/accounts?version=x", "", nil), http.StatusBadRequest)
	expectStatus(t, do(t, s, http.MethodGet, "/schemas/missing", "", nil), http.StatusNotFound)

	memo := schema.M("memo", schema.Option(schema.String()))
	rr = do(t, s, http.MethodPost, "/schemas/accounts/compat", "application/json", accountsDoc(t, memo))
	expectStatus(t, rr, http.StatusOK)
	if body := decodeBody(t, rr); body["compatible"] != true || body["difference"] != "addField" {
		t.Fatalf("unexpected compat body %#v", body)
	}

	rr = do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t, schema.M("memo", schema.String())))
	expectStatus(t, rr, http.StatusConflict)
	if body := decodeBody(t, rr); body["difference"] != "incompatible" {
		t.Fatalf("unexpected conflict body %#v", body)
	}

	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", []byte(`{"A": "Nope"}`)), http.StatusBadRequest)
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t, memo)), http.StatusCreated)

	yamlDoc := "Point:\n  Struct:\n    x: {Int: {bits: 32, isSigned: true}}\n"
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/points", "application/yaml", []byte(yamlDoc)), http.StatusCreated)
}

func TestPackUnpackVerify(t *testing.T) {
	testlog.Start(t)

	s := newTestServer(t)
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusCreated)

	rr := do(t, s, http.MethodPost, "/schemas/accounts/types/Account/pack", "application/json", []byte(`{"id":7,"name":"ada"}`))
	expectStatus(t, rr, http.StatusOK)
	if got := decodeBody(t, rr)["hex"]; got != adaHex {
		t.Fatalf("pack hex %v, want %s", got, adaHex)
	}

	req := httptest.NewRequest(http.MethodPost, "/schemas/accounts/types/Account/pack", strings.NewReader(`{"id":7,"name":"ada"}`))
	req.Header.Set("Accept", octetStream)
	raw := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(raw, req)
	expectStatus(t, raw, http.StatusOK)

	rr = do(t, s, http.MethodPost, "/schemas/accounts/types/Account/unpack", octetStream, raw.Body.Bytes())
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != `{"id":7,"name":"ada"}` {
		t.Fatalf("unexpected unpack body %s", rr.Body.String())
	}

	rr = do(t, s, http.MethodPost, "/schemas/accounts/types/Account/verify", "application/json", []byte(`{"hex":"`+adaHex+`00"}`))
	expectStatus(t, rr, http.StatusUnprocessableEntity)
	if body := decodeBody(t, rr); body["valid"] != false {
		t.Fatalf("unexpected verify body %#v", body)
	}
	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Account/verify", "application/json", []byte(`{"hex":"`+adaHex+`"}`)), http.StatusOK)

	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Account/pack", "application/json", []byte(`{"id":"x"}`)), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Account/pack", "application/json", []byte(`{`)), http.StatusBadRequest)
	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Nope/pack", "application/json", []byte(`{}`)), http.StatusNotFound)
	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Account/unpack", "application/json", []byte(`{"hex":"zz"}`)), http.StatusBadRequest)
}

func TestStrictUnpack(t *testing.T) {
	testlog.Start(t)

	s := newTestServer(t)
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusCreated)
	memo := schema.M("memo", schema.Option(schema.String()))
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t, memo)), http.StatusCreated)

	rr := do(t, s, http.MethodPost, "/schemas/accounts/types/Account/pack", "application/json", []byte(`{"id":7,"name":"ada","memo":"hi"}`))
	expectStatus(t, rr, http.StatusOK)
	payload, _ := json.Marshal(gin.H{"hex": decodeBody(t, rr)["hex"]})

	rr = do(t, s, http.MethodPost, "/schemas/accounts/types/Account/unpack?version=1", "application/json", payload)
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != `{"id":7,"name":"ada"}` {
		t.Fatalf("unexpected lenient body %s", rr.Body.String())
	}
	expectStatus(t, do(t, s, http.MethodPost, "/schemas/accounts/types/Account/unpack?version=1&strict=true", "application/json", payload), http.StatusUnprocessableEntity)
}

func TestBodyLimit(t *testing.T) {
	testlog.Start(t)

	s := newTestServer(t)
	s.MaxMessageBytes = 8
	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusRequestEntityTooLarge)
}

func TestServiceBootstrapAndSnapshot(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	if err := os.Mkdir(schemas, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(schemas, "accounts.json"), accountsDoc(t), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	cfg := config.DefaultServiceConfig()
	cfg.SchemaDir = schemas
	cfg.Snapshot = filepath.Join(dir, "registry.snap")
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, ok := svc.Server().Registry.Latest("accounts"); !ok {
		t.Fatalf("expected accounts after bootstrap")
	}
	if err := svc.saveSnapshot(); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	cfg.SchemaDir = filepath.Join(dir, "missing")
	restored, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := restored.bootstrap(); err != nil {
		t.Fatalf("bootstrap from snapshot: %v", err)
	}
	e, ok := restored.Server().Registry.Latest("accounts")
	if !ok || e.Version != 1 {
		t.Fatalf("expected accounts@1 from snapshot, got %#v", e)
	}
}

func TestServiceRejectsBadConfig(t *testing.T) {
	testlog.Start(t)

	cfg := config.DefaultServiceConfig()
	cfg.Allow = "sideways"
	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected invalid allow to fail")
	}
}

func TestRegistryWritesRequireToken(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultServiceConfig()
	cfg.AdminTokens = []string{"s3cret"}
	s := New(cfg, registry.New(nil, compat.Upgrade))

	expectStatus(t, do(t, s, http.MethodPut, "/schemas/accounts", "application/json", accountsDoc(t)), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodPut, "/schemas/accounts", bytes.NewReader(accountsDoc(t)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodPut, "/schemas/accounts", bytes.NewReader(accountsDoc(t)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusCreated)

	// reads stay open
	expectStatus(t, do(t, s, http.MethodGet, "/schemas/accounts", "", nil), http.StatusOK)
}
