// Package errorpage implements the two error-interception middleware
// variants described in the component design: a per-route handler that
// redirects ≥400 responses to a client-rendered SPA route, and a global
// catcher that replaces ≥400 bodies with the SPA's index.html outright.
package errorpage

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// HandlerConfig is the process-wide error-handler configuration: the
// directory backing the SPA and the filenames it may serve statically.
type HandlerConfig struct {
	DistDir     string
	StaticFiles []string
}

// Slot is a copy-on-write, lock-free holder of the current HandlerConfig.
// Written once per reload generation, read on every request — the Go
// equivalent of the mutex-guarded Option cell in the design notes, chosen
// here because readers never need to hold a lock across their use of the
// pointer.
type Slot struct {
	ptr atomic.Pointer[HandlerConfig]
}

// Store replaces the current handler config. Passing nil clears it.
func (s *Slot) Store(cfg *HandlerConfig) { s.ptr.Store(cfg) }

// Load returns the current handler config, or nil if none is configured.
func (s *Slot) Load() *HandlerConfig { return s.ptr.Load() }

func (c *HandlerConfig) indexPath() string {
	return filepath.Join(c.DistDir, "index.html")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// bufferedResponse captures a downstream handler's response so the
// middleware can inspect its status before anything reaches the client.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

// isUpgradeRequest reports whether r is asking to switch protocols, the same
// check router.Gzip uses to skip itself. Buffering such a request's response
// would hide the 101 from a http.Hijacker further down the chain, so both
// error-interception variants bypass themselves entirely for it.
func isUpgradeRequest(r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get("Upgrade")) != ""
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, vv := range b.header {
		dst[k] = vv
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}

// Proxied wraps one service's proxy client. On a ≥400 response it checks
// only whether <dist_dir>/index.html exists (not its contents) and, if so,
// converts the response into an empty-bodied redirect to /<status>.
func Proxied(slot *Slot, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgradeRequest(r) {
			next.ServeHTTP(w, r)
			return
		}
		buf := newBufferedResponse()
		next.ServeHTTP(buf, r)

		cfg := slot.Load()
		if buf.status >= 400 && cfg != nil && fileExists(cfg.indexPath()) {
			w.Header().Set("Location", "/"+strconv.Itoa(buf.status))
			w.WriteHeader(buf.status)
			return
		}
		buf.flush(w)
	})
}

// Global wraps a whole service. On a ≥400 response, unless the request's
// Origin is in excluded (services that opted out via skip_err_handling), it
// replaces the body with the SPA's index.html content, preserving status.
func Global(slot *Slot, excluded map[string]struct{}, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgradeRequest(r) {
			next.ServeHTTP(w, r)
			return
		}
		buf := newBufferedResponse()
		next.ServeHTTP(buf, r)

		cfg := slot.Load()
		if buf.status < 400 || cfg == nil {
			buf.flush(w)
			return
		}
		if _, skip := excluded[r.Header.Get("Origin")]; skip {
			buf.flush(w)
			return
		}

		content, err := os.ReadFile(cfg.indexPath())
		if err != nil {
			buf.flush(w)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(buf.status)
		_, _ = w.Write(content)
	})
}

// StaticFile serves one whitelisted filename from the handler config's
// dist directory, 404ing if it was never listed in static_files.
func StaticFile(slot *Slot, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := slot.Load()
		if cfg == nil {
			http.NotFound(w, r)
			return
		}
		allowed := false
		for _, f := range cfg.StaticFiles {
			if f == filename {
				allowed = true
				break
			}
		}
		if !allowed {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.DistDir, filename))
	}
}

// Index serves <dist_dir>/index.html for the error-code routes
// (/400, /401, ... /oops).
func Index(slot *Slot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := slot.Load()
		if cfg == nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, cfg.indexPath())
	}
}
