package authclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient is the production Client: a thin JSON/header adapter around the
// external auth service, sharing one pooled *http.Client the way the
// teacher's reverse proxy shares one *http.Transport across requests.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a Client bound to baseURL (e.g. "https://auth.internal").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

const (
	hdrChallenge      = "LBRP-Challenge"
	hdrChallengeState = "LBRP-Challenge-State"
	hdrChallengeSign  = "LBRP-Challenge-Sign"
	hdrSignupHints    = "SIGNUP_HINTS"
)

type authorizeWireRequest struct {
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
	CBA     string   `json:"cba,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type authorizeWireResponse struct {
	Approved       bool   `json:"approved"`
	NewAccessToken string `json:"new_access_token,omitempty"`
	NewCBAToken    string `json:"new_cba_token,omitempty"`
}

func (c *HTTPClient) call(ctx context.Context, op string, triple TokenTriple, challengeState string, challengeSign []byte, tags []string) (AuthorizeResult, error) {
	body := authorizeWireRequest{Access: triple.Access, Refresh: triple.Refresh, CBA: triple.CBA, Tags: tags}
	payload, err := json.Marshal(body)
	if err != nil {
		return AuthorizeResult{}, &ErrBackChannel{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return AuthorizeResult{}, &ErrBackChannel{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if challengeState != "" {
		req.Header.Set(hdrChallengeState, challengeState)
	}
	if len(challengeSign) > 0 {
		req.Header.Set(hdrChallengeSign, base64.StdEncoding.EncodeToString(challengeSign))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return AuthorizeResult{}, &ErrBackChannel{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return AuthorizeResult{}, &ErrBackChannel{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var wire authorizeWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return AuthorizeResult{}, &ErrBackChannel{Op: op, Err: err}
	}

	result := AuthorizeResult{
		Triple:         triple,
		Approved:       wire.Approved,
		NewAccessToken: wire.NewAccessToken,
		NewCBAToken:    wire.NewCBAToken,
	}
	if v := resp.Header.Get(hdrChallengeState); v != "" {
		result.NewChallengeState = v
		result.HasNewChallengeSt = true
	}
	if v := resp.Header.Get(hdrChallenge); v != "" {
		if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
			result.NewCBAChallenge = decoded
			result.HasNewChallenge = true
		}
	}
	return result, nil
}

func (c *HTTPClient) CheckSignedIn(ctx context.Context, triple TokenTriple) (AuthorizeResult, error) {
	return c.Authorize(ctx, triple, "", nil, nil)
}

func (c *HTTPClient) Authorize(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte, tags []string) (AuthorizeResult, error) {
	return c.call(ctx, "authorize", triple, challengeState, challengeSign, tags)
}

func (c *HTTPClient) RequestCBAUpdate(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte) (AuthorizeResult, error) {
	return c.call(ctx, "revalidate", triple, challengeState, challengeSign, nil)
}

type loginWireRequest struct {
	ID               string `json:"id"`
	Password         string `json:"password,omitempty"`
	CDPub            []byte `json:"cdpub,omitempty"`
	CBAChallengeSign []byte `json:"cba_challenge_sign,omitempty"`
}

type loginWireResponse struct {
	Challenge []byte `json:"challenge,omitempty"`
}

func (c *HTTPClient) login(ctx context.Context, op string, req LoginRequest) (LoginResponse, error) {
	payload, err := json.Marshal(loginWireRequest{
		ID:               req.ID,
		Password:         req.Password,
		CDPub:            req.CDPub,
		CBAChallengeSign: req.CBAChallengeSign,
	})
	if err != nil {
		return LoginResponse{}, &ErrBackChannel{Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return LoginResponse{}, &ErrBackChannel{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return LoginResponse{}, &ErrBackChannel{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return LoginResponse{}, &ErrBackChannel{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var wire loginWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return LoginResponse{}, &ErrBackChannel{Op: op, Err: err}
	}

	out := LoginResponse{Challenge: wire.Challenge, HasChallenge: len(wire.Challenge) > 0}
	out.SignupHints = resp.Header.Get(hdrSignupHints)
	return out, nil
}

func (c *HTTPClient) SignUpStep1(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	return c.login(ctx, "sign-up-step1", req)
}

func (c *HTTPClient) SignUpStep2(ctx context.Context, req LoginRequest, signupHints string) (TokenTriple, error) {
	return c.loginStep2(ctx, "sign-up-step2", req, signupHints)
}

func (c *HTTPClient) SignInStep1(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	return c.login(ctx, "sign-in-step1", req)
}

func (c *HTTPClient) SignInStep2(ctx context.Context, req LoginRequest) (TokenTriple, error) {
	return c.loginStep2(ctx, "sign-in-step2", req, "")
}

func (c *HTTPClient) loginStep2(ctx context.Context, op string, req LoginRequest, signupHints string) (TokenTriple, error) {
	payload, err := json.Marshal(loginWireRequest{
		ID:               req.ID,
		Password:         req.Password,
		CDPub:            req.CDPub,
		CBAChallengeSign: req.CBAChallengeSign,
	})
	if err != nil {
		return TokenTriple{}, &ErrBackChannel{Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return TokenTriple{}, &ErrBackChannel{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if signupHints != "" {
		httpReq.Header.Set(hdrSignupHints, signupHints)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return TokenTriple{}, &ErrBackChannel{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return TokenTriple{}, &ErrBackChannel{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var wire authorizeWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return TokenTriple{}, &ErrBackChannel{Op: op, Err: err}
	}
	return TokenTriple{Access: wire.NewAccessToken, CBA: wire.NewCBAToken}, nil
}

func (c *HTTPClient) ProvisionAdmin(ctx context.Context, cdpub []byte, password string) error {
	payload, err := json.Marshal(loginWireRequest{ID: "admin", Password: password, CDPub: cdpub})
	if err != nil {
		return &ErrBackChannel{Op: "provision-admin", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/provision-admin", bytes.NewReader(payload))
	if err != nil {
		return &ErrBackChannel{Op: "provision-admin", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return &ErrBackChannel{Op: "provision-admin", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return &ErrBackChannel{Op: "provision-admin", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (c *HTTPClient) Logout(ctx context.Context, triple TokenTriple) error {
	payload, err := json.Marshal(authorizeWireRequest{Access: triple.Access, Refresh: triple.Refresh, CBA: triple.CBA})
	if err != nil {
		return &ErrBackChannel{Op: "logout", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", bytes.NewReader(payload))
	if err != nil {
		return &ErrBackChannel{Op: "logout", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return &ErrBackChannel{Op: "logout", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &ErrBackChannel{Op: "logout", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
