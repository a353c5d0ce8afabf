package auth

// BundleAssets are the auth frontend's own static files: the WASM
// revalidator and its JS glue, the frontend bundle, and its stylesheet.
// They're served from a configurable bundle directory (router.Deps'
// FrontendBundleDir) rather than proxied to any service's upstream, since
// html_inject.go references them by these exact names on every authorized
// response.
var BundleAssets = []string{
	"lbrp-auth-frontend.js",
	"lbrp-auth-frontend_bg.wasm",
	"lbrp_cba_autovalidate.js",
	"lbrp_cba_autovalidate_bg.wasm",
	"tailwind.css",
}

// whitelist is the fixed set of paths served without a valid token triple:
// the auth endpoints, the frontend bundle, and the revalidator's own
// assets (it has to load before the user can be challenged at all).
var whitelist = buildWhitelist()

func buildWhitelist() map[string]struct{} {
	w := map[string]struct{}{
		"/--inner-lbrp-auth/sign-up-step1": {},
		"/--inner-lbrp-auth/sign-up-step2": {},
		"/--inner-lbrp-auth/sign-in-step1": {},
		"/--inner-lbrp-auth/sign-in-step2": {},
		"/--inner-lbrp-auth/checkup":       {},
		"/--inner-lbrp-auth/revalidate":    {},
		"/favicon.ico":                     {},
	}
	for _, name := range BundleAssets {
		w["/--inner-lbrp-auth/"+name] = struct{}{}
	}
	return w
}

func isWhitelisted(path string) bool {
	_, ok := whitelist[path]
	return ok
}
