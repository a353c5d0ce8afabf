package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/tokencodec"
)

func TestDeployAndCollectTripleRoundTrips(t *testing.T) {
	rec := httptest.NewRecorder()
	triple := authclient.TokenTriple{Access: "a-token", Refresh: "r-token", CBA: "c-token"}
	DeployTriple(rec, DefaultCookieNames, triple)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	got, ok := CollectTriple(req, DefaultCookieNames)
	if !ok {
		t.Fatal("CollectTriple failed to find the deployed triple")
	}
	if got != triple {
		t.Fatalf("got %+v, want %+v", got, triple)
	}
}

func TestDeployCookieChunksLargeValues(t *testing.T) {
	rec := httptest.NewRecorder()
	large := strings.Repeat("x", tokencodec.DefaultChunkSize*3+10)
	DeployCookie(rec, "LBRP-Access", large)

	cookies := rec.Result().Cookies()
	if len(cookies) < 2 {
		t.Fatalf("expected multiple chunked cookies, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	got, ok := collectChunked(req, "LBRP-Access")
	if !ok {
		t.Fatal("collectChunked failed to reassemble")
	}
	if got != large {
		t.Fatal("reassembled value did not round-trip")
	}
}

func TestCollectTripleFailsWithoutAccessOrRefresh(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieNames.Access, Value: "only-access"})

	if _, ok := CollectTriple(req, DefaultCookieNames); ok {
		t.Fatal("expected CollectTriple to fail without a refresh cookie")
	}
}

func TestRemoveCookiesExpiresAllChunks(t *testing.T) {
	rec := httptest.NewRecorder()
	large := strings.Repeat("y", tokencodec.DefaultChunkSize*2+5)
	DeployCookie(rec, "LBRP-Client", large)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	rec2 := httptest.NewRecorder()
	RemoveCookies(rec2, req, "LBRP-Client")

	for _, c := range rec2.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: MaxAge=%d", c.Name, c.MaxAge)
		}
	}
}
