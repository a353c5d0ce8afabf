// Package auth implements the challenge/response authorization middleware:
// enrollment/whitelist handling, the per-request authorize state machine,
// and HTML body injection of the auto-revalidation script.
package auth

import (
	"encoding/base64"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
	"github.com/impulse-sw/lbrp-go/internal/metrics"
)

const (
	HeaderChallenge      = "LBRP-Challenge"
	HeaderChallengeState = "LBRP-Challenge-State"
	HeaderChallengeSign  = "LBRP-Challenge-Sign"
)

// Middleware gates one service behind the back-channel authorize call.
type Middleware struct {
	Client            authclient.Client
	Names             CookieNames
	RequiredTags      []string
	FrontendIndexPath string
	Logger            zerolog.Logger
}

// Wrap returns an http.Handler implementing the state machine described in
// the component design: ExtractTokens, WhitelistCheck / BackChannelAuthorize,
// RefreshCookies&Headers, TagCheck (folded into the authorize call), then
// NextHandler with HTML injection on the way back out.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	names := m.Names
	if names == (CookieNames{}) {
		names = DefaultCookieNames
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		triple, ok := CollectTriple(r, names)
		if !ok {
			if isWhitelisted(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			m.serveFrontend(w)
			return
		}

		challengeState := r.Header.Get(HeaderChallengeState)
		var challengeSign []byte
		if raw := r.Header.Get(HeaderChallengeSign); raw != "" {
			if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
				challengeSign = decoded
			}
		}

		result, err := m.Client.Authorize(r.Context(), triple, challengeState, challengeSign, m.RequiredTags)
		if err != nil {
			m.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("auth back-channel failed")
			metrics.ObserveAuthDecision("backchannel_error")
			http.Error(w, "authorization service unavailable", http.StatusInternalServerError)
			return
		}

		m.refreshCookiesAndHeaders(w, names, result)

		if !result.Approved {
			metrics.ObserveAuthDecision("denied")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		metrics.ObserveAuthDecision("approved")

		injecting := newHTMLInjectingWriter(w)
		next.ServeHTTP(injecting, r)
		injecting.Flush()
	})
}

func (m *Middleware) refreshCookiesAndHeaders(w http.ResponseWriter, names CookieNames, result authclient.AuthorizeResult) {
	if result.HasNewChallengeSt {
		w.Header().Set(HeaderChallengeState, result.NewChallengeState)
	}
	if result.HasNewChallenge {
		w.Header().Set(HeaderChallenge, base64.StdEncoding.EncodeToString(result.NewCBAChallenge))
	}
	if result.NewAccessToken != "" {
		DeployCookie(w, names.Access, result.NewAccessToken)
	}
	if result.NewCBAToken != "" {
		DeployCookie(w, names.Client, result.NewCBAToken)
	}
}

func (m *Middleware) serveFrontend(w http.ResponseWriter) {
	body, err := os.ReadFile(m.FrontendIndexPath)
	if err != nil {
		m.Logger.Error().Err(err).Str("path", m.FrontendIndexPath).Msg("cannot read auth frontend index")
		http.Error(w, "auth frontend unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
