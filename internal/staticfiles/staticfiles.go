// Package staticfiles implements the common_static service variant: a
// mount point mapping URL paths to files on disk.
package staticfiles

import (
	"net/http"
	"path/filepath"
)

// Router serves a fixed mapping of URL path -> filesystem path. Paths not
// listed are handed to the handler it wraps (see Wrap); they are 404ed only
// when that handler is a not-found handler.
type Router struct {
	Routes map[string]string
}

// New builds a Router from the path -> filesystem-path mapping.
func New(routes map[string]string) *Router {
	return &Router{Routes: routes}
}

// Wrap returns a handler that serves a route's file when the request path
// matches, and otherwise falls through to next (the proxy client).
func (rt *Router) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fsPath, ok := rt.Routes[r.URL.Path]; ok {
			http.ServeFile(w, r, filepath.Clean(fsPath))
			return
		}
		next.ServeHTTP(w, r)
	})
}
