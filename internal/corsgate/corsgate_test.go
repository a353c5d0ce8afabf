package corsgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testOptions() Options {
	return Options{
		AllowedMethods:       []string{"GET", "POST"},
		AllowedHeaders:       []string{"Content-Type"},
		AllowedClientHeaders: []string{"LBRP-Challenge"},
	}
}

func TestWrapPreflightFromAllowedOriginShortCircuits(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	gate := New([]string{"https://app.example"}, testOptions())

	req := httptest.NewRequest(http.MethodOptions, "http://api.example/widgets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()

	gate.Wrap(next).ServeHTTP(rec, req)

	if called {
		t.Fatal("next handler should not be called for preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWrapDisallowedOriginPassesThroughUnchanged(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	gate := New([]string{"https://app.example"}, testOptions())

	req := httptest.NewRequest(http.MethodGet, "http://api.example/widgets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	gate.Wrap(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("next handler should be called for a disallowed origin")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("should not stamp CORS headers for a disallowed origin")
	}
}

func TestWrapAllowedOriginRewritesOriginToHost(t *testing.T) {
	var gotOrigin string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrigin = r.Header.Get("Origin")
		w.WriteHeader(http.StatusOK)
	})
	gate := New([]string{"https://app.example"}, testOptions())

	req := httptest.NewRequest(http.MethodGet, "http://api.example/widgets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()

	gate.Wrap(next).ServeHTTP(rec, req)

	if gotOrigin != "api.example" {
		t.Fatalf("downstream Origin = %q, want rewritten to Host", gotOrigin)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected Access-Control-Allow-Credentials: true")
	}
}
