// Package proxy implements the host-dispatching proxy engine: one Client
// per common_service, forwarding streaming request/response bodies to a
// single upstream and passing protocol-upgrade connections through
// verbatim once the upstream accepts them.
package proxy

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/applog"
	"github.com/impulse-sw/lbrp-go/internal/metrics"
)

// Client executes proxied requests for one common_service: forwarding to
// Target with the outbound Host rewritten to FromHost, the logical service
// host upstreams use for their own virtual-host routing.
type Client struct {
	FromHost  string
	Target    *url.URL
	Transport *http.Transport
	Logger    zerolog.Logger
}

// New builds a Client. The transport is tuned the way a long-lived reverse
// proxy's should be: bounded idle connections, keep-alive, no implicit
// HTTP/2 upgrade surprises for upstreams that don't expect it.
func New(fromHost string, target *url.URL) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		FromHost:  fromHost,
		Target:    target,
		Transport: transport,
		Logger:    applog.For("proxy"),
	}
}

// ServeHTTP implements the proxy client contract: Host rewrite, streaming
// body passthrough in both directions, and protocol-upgrade handling.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := ensureRequestID(r)
	w.Header().Set("X-Request-ID", requestID)

	upgradeType, wantsUpgrade := detectUpgrade(r.Header)

	outReq := r.Clone(r.Context())
	c.direct(outReq)
	if wantsUpgrade {
		// direct strips hop-by-hop headers; an upgrade request must still
		// ask the upstream to switch protocols.
		outReq.Header.Set("Connection", "Upgrade")
		outReq.Header.Set("Upgrade", r.Header.Get("Upgrade"))
	}

	metrics.IncUpstreamInflight(c.Target.Host)
	defer metrics.DecUpstreamInflight(c.Target.Host)

	resp, err := c.Transport.RoundTrip(outReq)
	if err != nil {
		status := http.StatusBadGateway
		if r.Context().Err() != nil {
			status = http.StatusRequestTimeout
		}
		c.Logger.Error().Err(err).Str("host", c.FromHost).Str("upstream", c.Target.Host).Msg("upstream_unreachable")
		metrics.ObserveProxyResponse(c.FromHost, r.Method, status, time.Since(start))
		http.Error(w, "upstream unreachable", status)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusSwitchingProtocols {
		c.handleUpgrade(w, resp, upgradeType, wantsUpgrade)
		metrics.ObserveProxyResponse(c.FromHost, r.Method, resp.StatusCode, time.Since(start))
		return
	}

	copyHeader(w.Header(), sanitizeHeaders(resp.Header))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	metrics.ObserveProxyResponse(c.FromHost, r.Method, resp.StatusCode, time.Since(start))
}

// direct rewrites the outbound request per the proxy client contract: Host
// set to the logical service host, hop-by-hop headers stripped, X-Forwarded-*
// injected, URL pointed at the upstream socket.
func (c *Client) direct(outReq *http.Request) {
	outReq.URL.Scheme = c.Target.Scheme
	outReq.URL.Host = c.Target.Host
	outReq.URL.Path = singleJoiningSlash(c.Target.Path, outReq.URL.Path)

	for _, h := range hopHeaders {
		outReq.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(outReq.RemoteAddr); err == nil && clientIP != "" {
		if xff := outReq.Header.Get("X-Forwarded-For"); xff == "" {
			outReq.Header.Set("X-Forwarded-For", clientIP)
		} else {
			outReq.Header.Set("X-Forwarded-For", xff+", "+clientIP)
		}
	}
	outReq.Header.Set("X-Forwarded-Proto", schemeOf(outReq))
	outReq.Header.Set("X-Forwarded-Host", outReq.Host)

	// Rationale in 4.1.1: upstreams are virtual-hosted and route on Host.
	outReq.Host = c.FromHost
}

func ensureRequestID(r *http.Request) string {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
		r.Header.Set("X-Request-ID", id)
	}
	return id
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if sch := r.Header.Get("X-Forwarded-Proto"); sch != "" {
		return sch
	}
	return "http"
}

func singleJoiningSlash(a, b string) string {
	aslash := len(a) > 0 && a[len(a)-1] == '/'
	bslash := len(b) > 0 && b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	default:
		return a + b
	}
}
