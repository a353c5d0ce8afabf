package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/impulse-sw/lbrp-go/internal/authclient"
)

const headerSignupHints = "SIGNUP_HINTS"

// Handlers implements the /--inner-lbrp-auth/ JSON endpoints: the two-leg
// sign-up/sign-in flows, a signed-in checkup, and the periodic client-token
// revalidation call.
type Handlers struct {
	Client authclient.Client
	Names  CookieNames
	Logger zerolog.Logger
}

type legOneRequest struct {
	ID string `json:"id"`
}

type legTwoRequest struct {
	ID               string `json:"id"`
	Password         string `json:"password"`
	CDPub            []byte `json:"cdpub"`
	CBAChallengeSign []byte `json:"cba_challenge_sign"`
}

type legOneResponse struct {
	Challenge []byte `json:"challenge,omitempty"`
}

// Mount registers the auth endpoints onto mux under prefix
// "/--inner-lbrp-auth/".
func (h *Handlers) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/--inner-lbrp-auth/sign-up-step1", h.signUpStep1)
	mux.HandleFunc("/--inner-lbrp-auth/sign-up-step2", h.signUpStep2)
	mux.HandleFunc("/--inner-lbrp-auth/sign-in-step1", h.signInStep1)
	mux.HandleFunc("/--inner-lbrp-auth/sign-in-step2", h.signInStep2)
	mux.HandleFunc("/--inner-lbrp-auth/checkup", h.checkup)
	mux.HandleFunc("/--inner-lbrp-auth/revalidate", h.revalidate)
}

func (h *Handlers) signUpStep1(w http.ResponseWriter, r *http.Request) {
	var req legOneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	resp, err := h.Client.SignUpStep1(r.Context(), authclient.LoginRequest{ID: req.ID})
	if err != nil {
		h.fail(w, "sign-up-step1", err)
		return
	}
	if resp.SignupHints != "" {
		w.Header().Set(headerSignupHints, resp.SignupHints)
	}
	h.writeJSON(w, legOneResponse{Challenge: resp.Challenge})
}

func (h *Handlers) signUpStep2(w http.ResponseWriter, r *http.Request) {
	var req legTwoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	hints := r.Header.Get(headerSignupHints)
	triple, err := h.Client.SignUpStep2(r.Context(), authclient.LoginRequest{
		ID: req.ID, Password: req.Password, CDPub: req.CDPub, CBAChallengeSign: req.CBAChallengeSign,
	}, hints)
	if err != nil {
		h.fail(w, "sign-up-step2", err)
		return
	}
	DeployTriple(w, h.names(), triple)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) signInStep1(w http.ResponseWriter, r *http.Request) {
	var req legOneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	resp, err := h.Client.SignInStep1(r.Context(), authclient.LoginRequest{ID: req.ID})
	if err != nil {
		h.fail(w, "sign-in-step1", err)
		return
	}
	h.writeJSON(w, legOneResponse{Challenge: resp.Challenge})
}

func (h *Handlers) signInStep2(w http.ResponseWriter, r *http.Request) {
	var req legTwoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	triple, err := h.Client.SignInStep2(r.Context(), authclient.LoginRequest{
		ID: req.ID, Password: req.Password, CDPub: req.CDPub, CBAChallengeSign: req.CBAChallengeSign,
	})
	if err != nil {
		h.fail(w, "sign-in-step2", err)
		return
	}
	DeployTriple(w, h.names(), triple)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) checkup(w http.ResponseWriter, r *http.Request) {
	triple, ok := CollectTriple(r, h.names())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	result, err := h.Client.CheckSignedIn(r.Context(), triple)
	if err != nil {
		h.fail(w, "checkup", err)
		return
	}
	h.writeJSON(w, struct {
		Authorized bool `json:"authorized"`
	}{result.Approved})
}

func (h *Handlers) revalidate(w http.ResponseWriter, r *http.Request) {
	triple, ok := CollectTriple(r, h.names())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	state := r.Header.Get(HeaderChallengeState)
	var sign []byte
	if raw := r.Header.Get(HeaderChallengeSign); raw != "" {
		if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
			sign = decoded
		}
	}

	result, err := h.Client.RequestCBAUpdate(r.Context(), triple, state, sign)
	if err != nil {
		h.fail(w, "revalidate", err)
		return
	}

	if result.HasNewChallengeSt {
		w.Header().Set(HeaderChallengeState, result.NewChallengeState)
	}
	if result.HasNewChallenge {
		w.Header().Set(HeaderChallenge, base64.StdEncoding.EncodeToString(result.NewCBAChallenge))
	}
	if result.NewAccessToken != "" {
		DeployCookie(w, h.names().Access, result.NewAccessToken)
	}
	if result.NewCBAToken != "" {
		DeployCookie(w, h.names().Client, result.NewCBAToken)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) names() CookieNames {
	if h.Names == (CookieNames{}) {
		return DefaultCookieNames
	}
	return h.Names
}

func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	h.Logger.Error().Err(err).Str("op", op).Msg("auth back-channel failed")
	http.Error(w, "authorization service unavailable", http.StatusInternalServerError)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
