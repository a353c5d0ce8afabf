// Package lifecycle drives the gateway process: TLS bring-up with a
// self-signed fallback certificate, an HTTP-to-HTTPS redirect listener, and
// the reload loop that rebuilds the route table on every config change and
// swaps it in atomically. Only process shutdown drains the servers (10 s
// deadline); a reload does not.
package lifecycle

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/config"
	"github.com/impulse-sw/lbrp-go/internal/metrics"
	"github.com/impulse-sw/lbrp-go/internal/router"
	"github.com/impulse-sw/lbrp-go/internal/supervisor"
)

// TLSConfig names where the gateway's certificate pair lives. When either
// file is missing, a self-signed localhost pair is generated in their
// place.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Driver owns the running generation (route table + supervised children)
// and swaps it out on every config reload.
type Driver struct {
	ConfigPath   string
	ListenAddr   string
	RedirectAddr string
	TLS          TLSConfig
	Deps         router.Deps
	Logger       zerolog.Logger

	current atomic.Pointer[generation]
}

type generation struct {
	children *supervisor.Set
}

// Run loads the initial config, starts the reload watcher, and blocks
// serving traffic until ctx is cancelled or an OS interrupt/TERM arrives.
func (d *Driver) Run(ctx context.Context) error {
	cfg, err := config.Load(d.ConfigPath)
	if err != nil {
		return err
	}

	rt, children, err := router.Build(cfg, d.Deps)
	if err != nil {
		return err
	}
	d.current.Store(&generation{children: children})
	live := router.NewLive(rt)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router.Gzip(live))
	handler := withServerHeader(mux)
	server := &http.Server{
		Addr:         d.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	watcher, err := config.NewWatcher(d.ConfigPath)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go d.reloadLoop(ctx, watcher.Subscribe(), live)

	var redirectServer *http.Server
	if d.TLS.Enabled && d.RedirectAddr != "" {
		redirectServer = &http.Server{Addr: d.RedirectAddr, Handler: http.HandlerFunc(redirectToHTTPS)}
		go func() {
			if err := redirectServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.Logger.Error().Err(err).Msg("redirect server failed")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		if d.TLS.Enabled {
			serveErr <- d.serveTLS(server)
			return
		}
		d.Logger.Info().Str("addr", d.ListenAddr).Msg("listening (http)")
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case <-ctx.Done():
		d.Logger.Info().Msg("shutdown signal received, draining")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		d.Logger.Warn().Err(err).Msg("server shutdown did not complete cleanly")
	}
	if redirectServer != nil {
		_ = redirectServer.Shutdown(drainCtx)
	}
	if gen := d.current.Load(); gen != nil {
		gen.children.KillAll()
	}
	return nil
}

// reloadLoop rebuilds the route table on every debounced config change,
// building a fresh Router and swapping it into live atomically, and swapping
// in the new supervised children only once the build succeeds (a bad
// generation never displaces a good one). The servers keep running; the
// previous generation's children are killed right after the swap, with no
// drain period for requests still using them.
func (d *Driver) reloadLoop(ctx context.Context, events <-chan config.ReloadEvent, live *router.LiveRouter) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			cfg, err := config.Load(d.ConfigPath)
			if err != nil {
				d.Logger.Error().Err(err).Msg("reload: config invalid, keeping previous generation")
				continue
			}
			newRt, newChildren, err := router.Build(cfg, d.Deps)
			if err != nil {
				d.Logger.Error().Err(err).Msg("reload: route build failed, keeping previous generation")
				continue
			}
			live.Swap(newRt)
			if prev := d.current.Swap(&generation{children: newChildren}); prev != nil {
				prev.children.KillAll()
			}
			metrics.ReloadsTotal.Inc()
			d.Logger.Info().Msg("reload: new generation active")
		}
	}
}

func (d *Driver) serveTLS(server *http.Server) error {
	certFile, keyFile := d.TLS.CertFile, d.TLS.KeyFile
	if certFile == "" {
		certFile = "lbrp.crt"
	}
	if keyFile == "" {
		keyFile = "lbrp.key"
	}
	if err := ensureSelfSignedIfMissing(certFile, keyFile); err != nil {
		return err
	}
	server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	d.Logger.Info().Str("addr", d.ListenAddr).Str("cert", certFile).Msg("listening (https)")
	err := server.ListenAndServeTLS(certFile, keyFile)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	target := "https://" + host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "lbrp-go")
		next.ServeHTTP(w, r)
	})
}

func ensureSelfSignedIfMissing(certPath, keyPath string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		return nil
	}
	return generateSelfSigned(certPath, keyPath)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// generateSelfSigned creates a 2048-bit RSA key and a one-year self-signed
// certificate for "localhost", used whenever no real pair is provisioned.
func generateSelfSigned(certPath, keyPath string) error {
	if dir := filepath.Dir(certPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if dir := filepath.Dir(keyPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return err
	}

	certTemplate := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "localhost",
			Organization: []string{"lbrp-go self-signed"},
		},
		NotBefore:             time.Now().Add(-1 * time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certDERBytes, err := x509.CreateCertificate(rand.Reader, certTemplate, certTemplate, &privateKey.PublicKey, privateKey)
	if err != nil {
		return err
	}

	certOut, err := os.Create(certPath)
	if err != nil {
		return err
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDERBytes}); err != nil {
		return err
	}

	keyOut, err := os.OpenFile(keyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
}
