package router

import (
	"compress/gzip"
	"net/http"
	"strings"
)

// Gzip wraps the whole route table in response compression, the outermost
// hoop in the original router's chain. It's skipped for anything that
// upgraded to a raw connection (no Content-Length/Content-Type left to
// negotiate against) and for event streams, where buffering defeats the
// point of streaming.
func Gzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		if _, upgrading := detectUpgradeRequest(r.Header); upgrading {
			next.ServeHTTP(w, r)
			return
		}

		gw := &gzipResponseWriter{ResponseWriter: w}
		defer gw.Close()
		next.ServeHTTP(gw, r)
	})
}

func detectUpgradeRequest(header http.Header) (string, bool) {
	upgrade := header.Get("Upgrade")
	if upgrade == "" {
		return "", false
	}
	return strings.ToLower(upgrade), true
}

// gzipResponseWriter lazily wraps the underlying writer in a gzip.Writer on
// the first Write, once the handler's Content-Type is known, so SSE
// responses (text/event-stream) pass through uncompressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz      *gzip.Writer
	decided bool
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	g.prepare()
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	g.prepare()
	if g.gz != nil {
		return g.gz.Write(p)
	}
	return g.ResponseWriter.Write(p)
}

func (g *gzipResponseWriter) prepare() {
	if g.decided {
		return
	}
	g.decided = true
	if strings.Contains(g.Header().Get("Content-Type"), "text/event-stream") {
		return
	}
	if g.Header().Get("Content-Encoding") != "" {
		return
	}
	g.Header().Set("Content-Encoding", "gzip")
	g.Header().Del("Content-Length")
	g.gz = gzip.NewWriter(g.ResponseWriter)
}

func (g *gzipResponseWriter) Close() {
	if g.gz != nil {
		_ = g.gz.Close()
	}
}

// Flush satisfies http.Flusher so streaming (non-upgraded, non-SSE)
// responses still flush through the gzip buffer.
func (g *gzipResponseWriter) Flush() {
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
