package errorpage

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// hijackableRecorder is a minimal http.ResponseWriter + http.Hijacker, the
// shape proxy.handleUpgrade requires to complete a 101 response.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, _ := net.Pipe()
	buf := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	return server, buf, nil
}

func writeIndex(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "index.html")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}
	return dir
}

func TestProxiedRedirectsOnErrorWhenIndexExists(t *testing.T) {
	dir := writeIndex(t, t.TempDir(), "<html>error</html>")
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	Proxied(slot, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/500" {
		t.Fatalf("Location = %q, want /500", got)
	}
}

func TestProxiedPassesThroughWhenNoHandlerConfigured(t *testing.T) {
	slot := &Slot{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("original body"))
	})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	Proxied(slot, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Body.String() != "original body" {
		t.Fatalf("body = %q, want passthrough", rec.Body.String())
	}
}

func TestGlobalReplacesBodyWithIndexContent(t *testing.T) {
	dir := writeIndex(t, t.TempDir(), "<html>branded error</html>")
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	Global(slot, map[string]struct{}{}, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if rec.Body.String() != "<html>branded error</html>" {
		t.Fatalf("body = %q, want branded index content", rec.Body.String())
	}
}

func TestGlobalSkipsExcludedOrigin(t *testing.T) {
	dir := writeIndex(t, t.TempDir(), "<html>branded error</html>")
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom\n", http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("Origin", "https://opted-out.example")
	rec := httptest.NewRecorder()

	excluded := map[string]struct{}{"https://opted-out.example": {}}
	Global(slot, excluded, next).ServeHTTP(rec, req)

	if rec.Body.String() != "boom\n\n" {
		t.Fatalf("body = %q, want original passthrough for excluded origin", rec.Body.String())
	}
}

func TestProxiedBypassesBufferingForUpgradeRequests(t *testing.T) {
	dir := writeIndex(t, t.TempDir(), "<html>error</html>")
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir})

	var sawHijacker bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHijacker = w.(http.Hijacker)
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}

	Proxied(slot, next).ServeHTTP(rec, req)

	if !sawHijacker {
		t.Fatal("next should receive the real, hijackable ResponseWriter for an upgrade request")
	}
}

func TestGlobalBypassesBufferingForUpgradeRequests(t *testing.T) {
	dir := writeIndex(t, t.TempDir(), "<html>error</html>")
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir})

	var sawHijacker bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHijacker = w.(http.Hijacker)
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}

	Global(slot, map[string]struct{}{}, next).ServeHTTP(rec, req)

	if !sawHijacker {
		t.Fatal("next should receive the real, hijackable ResponseWriter for an upgrade request")
	}
}

func TestStaticFileServesOnlyWhitelistedNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tailwind.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	slot := &Slot{}
	slot.Store(&HandlerConfig{DistDir: dir, StaticFiles: []string{"tailwind.css"}})

	req := httptest.NewRequest(http.MethodGet, "/tailwind.css", nil)
	rec := httptest.NewRecorder()
	StaticFile(slot, "tailwind.css")(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/not-listed.css", nil)
	rec2 := httptest.NewRecorder()
	StaticFile(slot, "not-listed.css")(rec2, req2)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec2.Code)
	}
}
