// Package router assembles one generation's full route table: global
// error-code/static routes, then one host-keyed, middleware-wrapped handler
// per common_service. A request to a service passes, in order: IP-header
// injection, the auth gate, then (within the catch-all) the CORS gate, the
// global error catcher, the static override, and the per-route error
// interceptor, terminating in the proxy client.
package router

import (
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/applog"
	"github.com/impulse-sw/lbrp-go/internal/auth"
	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/config"
	"github.com/impulse-sw/lbrp-go/internal/corsgate"
	"github.com/impulse-sw/lbrp-go/internal/errorpage"
	"github.com/impulse-sw/lbrp-go/internal/proxy"
	"github.com/impulse-sw/lbrp-go/internal/staticfiles"
	"github.com/impulse-sw/lbrp-go/internal/supervisor"
)

// Router dispatches by request Host, falling back to a fixed set of global
// error-code/static routes that are reachable regardless of which host a
// request names (mirroring the upstream router's route-registration order,
// where those routes are pushed before any per-service sub-router).
type Router struct {
	globalRoutes map[string]http.HandlerFunc
	hosts        map[string]http.Handler
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, ok := rt.globalRoutes[r.URL.Path]; ok {
		handler(w, r)
		return
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if handler, ok := rt.hosts[host]; ok {
		handler.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// LiveRouter is the process-wide entry point: an atomically swappable
// pointer to the current generation's Router, so a reload never blocks or
// races against in-flight requests.
type LiveRouter struct {
	ptr atomic.Pointer[Router]
}

// NewLive wraps rt as the initial live generation.
func NewLive(rt *Router) *LiveRouter {
	lr := &LiveRouter{}
	lr.ptr.Store(rt)
	return lr
}

// Swap installs rt as the new live generation.
func (lr *LiveRouter) Swap(rt *Router) { lr.ptr.Store(rt) }

func (lr *LiveRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lr.ptr.Load().ServeHTTP(w, r)
}

// errorCodeRoutes are registered globally whenever an error_handler is
// configured, serving its SPA for every branded status route.
var errorCodeRoutes = []string{"/400", "/401", "/403", "/404", "/405", "/423", "/500", "/oops"}

// Deps are the cross-cutting collaborators a generation's routes are built
// against; they outlive any single Build call (the auth client's HTTP pool,
// the error-handler slot, and the CORS defaults all persist across
// reloads).
type Deps struct {
	AuthClient        authclient.Client
	ErrorSlot         *errorpage.Slot
	CORSOpts          corsgate.Options
	CookieNames       auth.CookieNames
	FrontendIndexPath string
	FrontendBundleDir string
	Logger            zerolog.Logger
}

// Build assembles the route table for one config generation and spawns its
// supervised children. On any spawn failure, already-spawned children for
// this generation are killed and the error is returned (the caller aborts
// the generation without touching the previous one).
func Build(cfg *config.Config, deps Deps) (*Router, *supervisor.Set, error) {
	rt := &Router{globalRoutes: make(map[string]http.HandlerFunc), hosts: make(map[string]http.Handler)}

	if eh := cfg.ErrorHandler(); eh != nil {
		slotCfg := &errorpage.HandlerConfig{DistDir: eh.DistDir, StaticFiles: eh.StaticFiles}
		deps.ErrorSlot.Store(slotCfg)

		for _, path := range errorCodeRoutes {
			rt.globalRoutes[path] = errorpage.Index(deps.ErrorSlot)
		}
		for _, file := range eh.StaticFiles {
			rt.globalRoutes["/"+file] = errorpage.StaticFile(deps.ErrorSlot, file)
		}
	} else {
		deps.ErrorSlot.Store(nil)
	}

	if deps.FrontendBundleDir != "" {
		routes := make(map[string]string, len(auth.BundleAssets))
		for _, name := range auth.BundleAssets {
			routes["/--inner-lbrp-auth/"+name] = filepath.Join(deps.FrontendBundleDir, name)
		}
		bundle := staticfiles.New(routes).Wrap(http.NotFoundHandler())
		for path := range routes {
			rt.globalRoutes[path] = bundle.ServeHTTP
		}
	}

	excluded := cfg.ExcludedFromErrHandling()
	hasErrorHandler := cfg.ErrorHandler() != nil
	commonStatic := cfg.CommonStatic()

	children := &supervisor.Set{Logger: applog.For("supervisor")}
	var specs []supervisor.Spec
	for _, svc := range cfg.CommonServices() {
		if svc.ShouldStartup() {
			specs = append(specs, supervisor.Spec{
				ServiceName: svc.ServiceName,
				StartupCmd:  svc.StartupCmd,
				WorkingDir:  svc.WorkingDir,
				WaitAfter:   time.Duration(svc.WaitAfter) * time.Second,
			})
		}
	}
	if err := children.Spawn(specs); err != nil {
		children.KillAll()
		return nil, nil, err
	}

	for _, svc := range cfg.CommonServices() {
		target, err := url.Parse(svc.To)
		if err != nil {
			children.KillAll()
			return nil, nil, err
		}

		proxyClient := proxy.New(svc.From, target)

		var handler http.Handler = proxyClient
		if hasErrorHandler && !svc.SkipErrHandling {
			handler = errorpage.Proxied(deps.ErrorSlot, handler)
		}
		if commonStatic != nil {
			handler = staticfiles.New(commonStatic.StaticRoutes).Wrap(handler)
		}
		handler = withGlobalCatcher(handler, deps.ErrorSlot, excluded, hasErrorHandler)
		if len(svc.CORSDomains) > 0 {
			gate := corsgate.New(svc.CORSDomains, deps.CORSOpts)
			handler = gate.Wrap(handler)
		}

		mux := http.NewServeMux()
		mux.Handle("/", handler)
		if len(svc.RequireSubdomainAuth) > 0 {
			authHandlers := &auth.Handlers{Client: deps.AuthClient, Names: deps.CookieNames, Logger: deps.Logger}
			authHandlers.Mount(mux)
		}

		var serviceHandler http.Handler = mux
		if len(svc.RequireSubdomainAuth) > 0 {
			mw := &auth.Middleware{
				Client:            deps.AuthClient,
				Names:             deps.CookieNames,
				RequiredTags:      svc.RequireSubdomainAuth,
				FrontendIndexPath: deps.FrontendIndexPath,
				Logger:            deps.Logger,
			}
			serviceHandler = mw.Wrap(mux)
		}
		if svc.ProvideIPAsHeader != "" {
			serviceHandler = ipHeaderInjector(svc.ProvideIPAsHeader, serviceHandler)
		}

		rt.hosts[svc.From] = serviceHandler
	}

	return rt, children, nil
}

// withGlobalCatcher applies the whole-service error catcher when an
// error_handler is configured. Opt-outs are not checked here: the catcher
// itself skips requests whose Origin is in excluded.
func withGlobalCatcher(next http.Handler, slot *errorpage.Slot, excluded map[string]struct{}, enabled bool) http.Handler {
	if !enabled {
		return next
	}
	return errorpage.Global(slot, excluded, next)
}

// ipHeaderInjector is the IpHeaderInjector capability from the design
// notes: it stamps the caller's remote address into a config-named header
// before anything downstream (including the auth gate) sees the request.
func ipHeaderInjector(headerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			r.Header.Set(headerName, ip)
		}
		next.ServeHTTP(w, r)
	})
}
