package auth

import (
	"fmt"
	"net/http"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/tokencodec"
)

// CookieNames holds the configurable cookie names for the token triple.
type CookieNames struct {
	Access  string
	Refresh string
	Client  string
}

// DefaultCookieNames matches the header table's defaults.
var DefaultCookieNames = CookieNames{Access: "LBRP-Access", Refresh: "LBRP-Refresh", Client: "LBRP-Client"}

func collectChunked(r *http.Request, prefix string) (string, bool) {
	if c, err := r.Cookie(prefix); err == nil {
		return c.Value, true
	}
	var parts []string
	for i := 1; ; i++ {
		c, err := r.Cookie(fmt.Sprintf("%s-%d", prefix, i))
		if err != nil {
			break
		}
		parts = append(parts, c.Value)
	}
	if len(parts) == 0 {
		return "", false
	}
	return string(tokencodec.Join(parts)), true
}

// CollectTriple extracts the token triple from request cookies. It fails
// (ok=false) unless both access and refresh are present; cba is optional.
func CollectTriple(r *http.Request, names CookieNames) (authclient.TokenTriple, bool) {
	access, ok := collectChunked(r, names.Access)
	if !ok || access == "" {
		return authclient.TokenTriple{}, false
	}
	refreshCookie, err := r.Cookie(names.Refresh)
	if err != nil {
		return authclient.TokenTriple{}, false
	}
	cba, _ := collectChunked(r, names.Client)
	return authclient.TokenTriple{Access: access, Refresh: refreshCookie.Value, CBA: cba}, true
}

func newCookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
	}
}

// DeployCookie writes value under prefix, splitting across NAME-1.. cookies
// when it exceeds one chunk.
func DeployCookie(w http.ResponseWriter, prefix, value string) {
	chunks := tokencodec.Split([]byte(value), tokencodec.DefaultChunkSize)
	if len(chunks) == 1 {
		http.SetCookie(w, newCookie(prefix, chunks[0]))
		return
	}
	for i, chunk := range chunks {
		http.SetCookie(w, newCookie(fmt.Sprintf("%s-%d", prefix, i+1), chunk))
	}
}

// DeployTriple writes the full token triple to response cookies.
func DeployTriple(w http.ResponseWriter, names CookieNames, triple authclient.TokenTriple) {
	DeployCookie(w, names.Access, triple.Access)
	DeployCookie(w, names.Refresh, triple.Refresh)
	if triple.CBA != "" {
		DeployCookie(w, names.Client, triple.CBA)
	}
}

func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, Secure: true, HttpOnly: true})
}

// RemoveCookies clears a (possibly chunked) cookie family, using the
// incoming request to discover how many numbered parts were deployed.
func RemoveCookies(w http.ResponseWriter, r *http.Request, prefix string) {
	expireCookie(w, prefix)
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s-%d", prefix, i)
		if _, err := r.Cookie(name); err != nil {
			break
		}
		expireCookie(w, name)
	}
}
