// Package corsgate implements the per-service CORS gate: preflight
// short-circuiting and response-header stamping restricted to a
// configured origin allow-list.
package corsgate

import (
	"net/http"
	"strings"
)

// Options are the shared, service-independent header values (cors_opts in
// the config schema).
type Options struct {
	AllowedMethods       []string
	AllowedHeaders       []string
	AllowedClientHeaders []string
}

func (o Options) methods() string { return strings.Join(o.AllowedMethods, ", ") }
func (o Options) headers() string { return strings.Join(o.AllowedHeaders, ", ") }
func (o Options) expose() string  { return strings.Join(o.AllowedClientHeaders, ", ") }

// Gate is a middleware parameterized by one service's allowed origins plus
// the shared Options.
type Gate struct {
	AllowedOrigins map[string]struct{}
	Options        Options
}

// New builds a Gate from an origin slice.
func New(origins []string, opts Options) *Gate {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Gate{AllowedOrigins: allowed, Options: opts}
}

func (g *Gate) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := g.AllowedOrigins[origin]
	return ok
}

func (g *Gate) stamp(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", g.Options.methods())
	h.Set("Access-Control-Allow-Headers", g.Options.headers())
	h.Set("Access-Control-Expose-Headers", g.Options.expose())
	h.Set("Access-Control-Max-Age", "86400")
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Cookie")
	h.Add("Vary", "Origin")
}

// Wrap returns next gated by this CORS policy. Preflight requests from an
// allowed origin are short-circuited with 204; normal requests from an
// allowed origin are stamped on the way back out and have their Origin
// header rewritten to equal Host before reaching next, so upstreams that
// reject cross-site writes see a same-origin request within the trust
// boundary of the allow-list. Requests from origins outside the allow-list,
// and requests with no Origin at all, pass through completely unchanged.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !g.allowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			g.stamp(w, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != r.Host {
			r.Header.Set("Origin", r.Host)
		}
		g.stamp(w, origin)
		next.ServeHTTP(w, r)
	})
}
