package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/config"
	"github.com/impulse-sw/lbrp-go/internal/errorpage"
)

func testDeps() Deps {
	return Deps{
		AuthClient: authclient.NewFakeClient(),
		ErrorSlot:  &errorpage.Slot{},
		Logger:     zerolog.Nop(),
	}
}

func TestBuildRoutesToUpstreamByHost(t *testing.T) {
	var gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Mode: config.ModeSingle,
		Services: []config.Service{
			{Type: config.ServiceTypeCommon, Common: &config.CommonService{
				From: "api.example",
				To:   upstream.URL,
			}},
		},
	}

	rt, children, err := Build(cfg, testDeps())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer children.KillAll()

	req := httptest.NewRequest(http.MethodGet, "http://api.example/widgets", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotHost != "api.example" {
		t.Fatalf("upstream saw Host = %q, want api.example", gotHost)
	}
}

func TestBuildUnknownHostNotFound(t *testing.T) {
	cfg := &config.Config{Mode: config.ModeSingle}
	rt, children, err := Build(cfg, testDeps())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer children.KillAll()

	req := httptest.NewRequest(http.MethodGet, "http://nowhere.example/", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBuildErrorCodeRouteIsHostIndependent(t *testing.T) {
	distDir := t.TempDir()
	if err := writeFile(distDir+"/index.html", "<html>error</html>"); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Mode: config.ModeSingle,
		Services: []config.Service{
			{Type: config.ServiceTypeErrorHandler, Error: &config.ErrorHandler{DistDir: distDir}},
		},
	}

	rt, children, err := Build(cfg, testDeps())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer children.KillAll()

	req := httptest.NewRequest(http.MethodGet, "http://anything.example/400", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBuildServesAuthBundleAssetsLocallyInsteadOfProxying(t *testing.T) {
	upstreamHit := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	bundleDir := t.TempDir()
	if err := writeFile(bundleDir+"/tailwind.css", "body{}"); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Mode: config.ModeSingle,
		Services: []config.Service{
			{Type: config.ServiceTypeCommon, Common: &config.CommonService{
				From: "app.example",
				To:   upstream.URL,
			}},
		},
	}

	deps := testDeps()
	deps.FrontendBundleDir = bundleDir
	rt, children, err := Build(cfg, deps)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer children.KillAll()

	req := httptest.NewRequest(http.MethodGet, "http://app.example/--inner-lbrp-auth/tailwind.css", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "body{}" {
		t.Fatalf("body = %q, want the bundle file content", rec.Body.String())
	}
	if upstreamHit {
		t.Fatal("auth bundle asset should be served locally, not proxied upstream")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
