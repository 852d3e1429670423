package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/orchestrator"
	"github.com/mdstack/conductor/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := &config.Config{
		Ports:   config.PortRange{Base: 9700, Span: 4},
		DocsDir: t.TempDir(),
		Sync: config.RemoteService("ws://localhost:4444"),
		Runtime: config.ManagedService(config.ManagedProgram{
			Port:         8000,
			Command:      "echo runtime-ready; sleep 60",
			ReadyMarker:  "runtime-ready",
			ReadyTimeout: 5 * time.Second,
		}, "http://127.0.0.1:8000"),
		Monitor: config.Monitor{
			Enabled: true,
			Program: config.ManagedProgram{
				Command:      "echo monitor-ready; sleep 60",
				ReadyMarker:  "monitor-ready",
				ReadyTimeout: 5 * time.Second,
			},
		},
	}
	o, err := orchestrator.New(cfg)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func doReq(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	w := doReq(h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestBasePathPrefix(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "/conductor").Handler()
	if w := doReq(h, http.MethodGet, "/conductor/health", nil); w.Code != http.StatusOK {
		t.Fatalf("prefixed health = %d", w.Code)
	}
	if w := doReq(h, http.MethodGet, "/health", nil); w.Code == http.StatusOK {
		t.Fatalf("unprefixed route served despite basePath")
	}
}

func TestStatusAndURLs(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	w := doReq(h, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report orchestrator.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.URLs.Sync != "ws://localhost:4444" {
		t.Fatalf("report urls = %+v", report.URLs)
	}

	w = doReq(h, http.MethodGet, "/api/urls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("urls = %d", w.Code)
	}
}

func TestSessionRoundtrip(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()

	w := doReq(h, http.MethodPost, "/api/sessions", map[string]string{"doc": "notes.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var info session.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Doc != "notes.md" || info.Runtime.Dedicated {
		t.Fatalf("info = %+v", info)
	}

	if w = doReq(h, http.MethodGet, "/api/sessions/notes.md", nil); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if w = doReq(h, http.MethodGet, "/api/sessions", nil); w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if w = doReq(h, http.MethodDelete, "/api/sessions/notes.md", nil); w.Code != http.StatusOK {
		t.Fatalf("destroy = %d", w.Code)
	}
	if w = doReq(h, http.MethodGet, "/api/sessions/notes.md", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after destroy = %d", w.Code)
	}
}

func TestSessionCreateRejectsBadInput(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()

	w := doReq(h, http.MethodPost, "/api/sessions", map[string]string{"doc": "a.md", "mode": "turbo"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode = %d", w.Code)
	}
	w = doReq(h, http.MethodPost, "/api/sessions", map[string]string{"doc": "../etc/passwd"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("traversal doc = %d", w.Code)
	}
	w = doReq(h, http.MethodPost, "/api/sessions", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty doc = %d", w.Code)
	}
}

func TestDedicatedExhaustionReturns503(t *testing.T) {
	o := testOrchestrator(t)
	h := NewRouter(o, "").Handler()
	// span is 4; eat every port
	for _, doc := range []string{"a.md", "b.md", "c.md", "d.md"} {
		if _, err := o.Sessions().Create(doc, session.ModeDedicated); err != nil {
			t.Fatalf("create %s: %v", doc, err)
		}
	}
	w := doReq(h, http.MethodPost, "/api/sessions", map[string]string{"doc": "e.md", "mode": "dedicated"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("exhaustion = %d: %s", w.Code, w.Body.String())
	}
}

func TestMonitorEndpoints(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()

	if w := doReq(h, http.MethodPost, "/api/monitors/watch.md", nil); w.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", w.Code, w.Body.String())
	}
	w := doReq(h, http.MethodGet, "/api/monitors", nil)
	var docs []string
	if err := json.Unmarshal(w.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 1 || docs[0] != "watch.md" {
		t.Fatalf("monitors = %v", docs)
	}
	w = doReq(h, http.MethodGet, "/api/monitors/watch.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d: %s", w.Code, w.Body.String())
	}
	var mon struct {
		Doc     string `json:"doc"`
		Name    string `json:"name"`
		Running bool   `json:"running"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &mon); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mon.Doc != "watch.md" || mon.Name != "monitor:watch.md" || !mon.Running {
		t.Fatalf("monitor = %+v", mon)
	}
	if w := doReq(h, http.MethodDelete, "/api/monitors/watch.md", nil); w.Code != http.StatusOK {
		t.Fatalf("stop = %d", w.Code)
	}
	if w := doReq(h, http.MethodGet, "/api/monitors/watch.md", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after stop = %d", w.Code)
	}
	if w := doReq(h, http.MethodPost, "/api/monitors/..", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad doc = %d", w.Code)
	}
}

func TestLogsEndpoint(t *testing.T) {
	o := testOrchestrator(t)
	h := NewRouter(o, "").Handler()
	if !o.Sessions().StartMonitor("logdoc.md") {
		t.Fatalf("monitor did not start")
	}
	w := doReq(h, http.MethodGet, "/api/logs/monitor:logdoc.md?lines=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logs = %d: %s", w.Code, w.Body.String())
	}
	if w := doReq(h, http.MethodGet, "/api/logs/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown logs = %d", w.Code)
	}
}

func TestFilesAPI(t *testing.T) {
	o := testOrchestrator(t)
	h := NewRouter(o, "").Handler()

	w := doReq(h, http.MethodPost, "/api/files", map[string]string{"name": "todo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(o.DocsDir(), "todo.md")); err != nil {
		t.Fatalf("file not created: %v", err)
	}
	// duplicate
	if w = doReq(h, http.MethodPost, "/api/files", map[string]string{"name": "todo.md"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d", w.Code)
	}

	w = doReq(h, http.MethodGet, "/api/files", nil)
	var files []fileInfo
	if err := json.Unmarshal(w.Body.Bytes(), &files); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(files) != 1 || files[0].Name != "todo.md" {
		t.Fatalf("files = %v", files)
	}

	// deleting the file cascades into destroying its session
	if _, err := o.Sessions().Create("todo.md", session.ModeShared); err != nil {
		t.Fatalf("session: %v", err)
	}
	if w = doReq(h, http.MethodDelete, "/api/files/todo.md", nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", w.Code, w.Body.String())
	}
	if o.Sessions().Has("todo.md") {
		t.Fatalf("session survived file deletion")
	}
	if w = doReq(h, http.MethodDelete, "/api/files/todo.md", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	if w := doReq(h, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"/":           "",
		"api":         "/api",
		"/api/":       "/api",
		"  /api  ":    "/api",
		"/nested/api": "/nested/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"notes.md", "a-b_c.1", "UPPER"} {
		if !isSafeName(ok) {
			t.Fatalf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", "..", "a/../b", "a/b", `a\b`, "spaced name", "sémantic"} {
		if isSafeName(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}
