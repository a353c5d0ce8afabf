package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/impulse-sw/lbrp-go/internal/metrics"
)

// detectUpgrade reports the lower-cased Upgrade token when the request
// carries both "Connection: upgrade" (among possibly several comma-joined
// tokens) and an Upgrade header.
func detectUpgrade(header http.Header) (string, bool) {
	hasUpgradeToken := false
	for _, token := range strings.Split(header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			hasUpgradeToken = true
			break
		}
	}
	upgrade := strings.TrimSpace(header.Get("Upgrade"))
	if !hasUpgradeToken || upgrade == "" {
		return "", false
	}
	return strings.ToLower(upgrade), true
}

// handleUpgrade completes a 101 Switching Protocols response by hijacking
// the client connection and copying bytes bidirectionally against the
// upstream's own upgraded connection, which Go's http.Transport exposes as
// an io.ReadWriteCloser via resp.Body for a 101 response.
func (c *Client) handleUpgrade(w http.ResponseWriter, resp *http.Response, requestUpgradeType string, wantsUpgrade bool) {
	if !wantsUpgrade {
		metrics.ObserveUpgrade("no_upgrade_extension")
		http.Error(w, "no_upgrade_extension", http.StatusInternalServerError)
		return
	}

	responseUpgradeType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Upgrade")))
	if responseUpgradeType != requestUpgradeType {
		metrics.ObserveUpgrade("upgrade_type_mismatch")
		http.Error(w, "upgrade_type_mismatch", http.StatusInternalServerError)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		metrics.ObserveUpgrade("no_upgrade_extension")
		http.Error(w, "no_upgrade_extension", http.StatusInternalServerError)
		return
	}
	upstreamConn, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		metrics.ObserveUpgrade("no_upgrade_extension")
		http.Error(w, "no_upgrade_extension", http.StatusInternalServerError)
		return
	}

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		c.Logger.Error().Err(err).Msg("failed to hijack client connection for upgrade")
		metrics.ObserveUpgrade("no_upgrade_extension")
		return
	}
	defer clientConn.Close()

	if err := writeSwitchingProtocols(clientBuf, resp.Header); err != nil {
		c.Logger.Error().Err(err).Msg("failed to write 101 response to client")
		return
	}

	metrics.ObserveUpgrade("success")
	// clientBuf may already hold bytes the client sent ahead of the 101
	// (pipelined frames right after the Upgrade request); read through its
	// buffer first so they aren't dropped before the raw conn takes over.
	buffered := &hijackedConn{ReadWriter: clientBuf, Conn: clientConn}
	copyBidirectional(buffered, upstreamConn, c)
}

// hijackedConn reads through a hijacked connection's buffered bufio.Reader
// (which may already hold client bytes read ahead of the 101 response) while
// writing and closing against the underlying net.Conn directly.
type hijackedConn struct {
	*bufio.ReadWriter
	net.Conn
}

func (h *hijackedConn) Read(p []byte) (int, error)  { return h.ReadWriter.Read(p) }
func (h *hijackedConn) Write(p []byte) (int, error) { return h.Conn.Write(p) }
func (h *hijackedConn) Close() error                { return h.Conn.Close() }

func writeSwitchingProtocols(w io.Writer, header http.Header) error {
	if _, err := fmt.Fprint(w, "HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	for k, vv := range header {
		for _, v := range vv {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if flusher, ok := w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// copyBidirectional is the canonical "spawn task that survives the request
// handler" pattern: both halves are copied concurrently until either side
// closes or errors, at which point both connections are torn down.
func copyBidirectional(client io.ReadWriteCloser, upstream io.ReadWriteCloser, c *Client) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := io.Copy(upstream, client); err != nil {
			c.Logger.Debug().Err(err).Msg("upgrade copy client->upstream ended")
		}
		_ = upstream.Close()
	}()
	go func() {
		defer wg.Done()
		if _, err := io.Copy(client, upstream); err != nil {
			c.Logger.Debug().Err(err).Msg("upgrade copy upstream->client ended")
		}
		_ = client.Close()
	}()

	wg.Wait()
}
