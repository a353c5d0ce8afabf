package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
)

func newMiddleware(t *testing.T, client authclient.Client) (*Middleware, string) {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.html")
	if err := os.WriteFile(indexPath, []byte("<html>frontend</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &Middleware{
		Client:            client,
		Names:             DefaultCookieNames,
		FrontendIndexPath: indexPath,
		Logger:            zerolog.Nop(),
	}, indexPath
}

func TestWrapNoTokensServesFrontendForNonWhitelistedPath(t *testing.T) {
	mw, _ := newMiddleware(t, authclient.NewFakeClient())
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, req)

	if called {
		t.Fatal("next should not run without a token triple")
	}
	if rec.Body.String() != "<html>frontend</html>" {
		t.Fatalf("body = %q, want the frontend index", rec.Body.String())
	}
}

func TestWrapNoTokensPassesThroughWhitelistedPath(t *testing.T) {
	mw, _ := newMiddleware(t, authclient.NewFakeClient())
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("whitelisted path should reach next without a token triple")
	}
}

func TestWrapApprovedRequestInjectsAutoupdaterIntoHTML(t *testing.T) {
	fake := authclient.NewFakeClient()
	fake.Approve = true
	mw, _ := newMiddleware(t, fake)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><head></head><body></body></html>"))
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieNames.Access, Value: "access-tok"})
	req.AddCookie(&http.Cookie{Name: DefaultCookieNames.Refresh, Value: "refresh-tok"})
	rec := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "cba_autovalidate") {
		t.Fatalf("body missing autoupdater injection: %q", body)
	}
}

func TestWrapDeniedRequestReturns403(t *testing.T) {
	fake := authclient.NewFakeClient()
	fake.Approve = false
	mw, _ := newMiddleware(t, fake)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieNames.Access, Value: "access-tok"})
	req.AddCookie(&http.Cookie{Name: DefaultCookieNames.Refresh, Value: "refresh-tok"})
	rec := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
