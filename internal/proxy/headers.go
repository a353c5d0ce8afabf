package proxy

import "net/http"

// hopHeaders are stripped before forwarding in either direction, per
// RFC 7230 §6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func sanitizeHeaders(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for k, vv := range header {
		out[k] = append([]string(nil), vv...)
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
