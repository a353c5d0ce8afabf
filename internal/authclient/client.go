// Package authclient adapts the gateway to the external authentication
// back-channel: a two-leg ed25519 challenge/response login/signup flow and
// a per-request authorize/revalidate call, both treated as an external
// collaborator reached over HTTP.
package authclient

import "context"

// TokenTriple is the {access, refresh, cba?} bundle carried in cookies.
type TokenTriple struct {
	Access  string
	Refresh string
	CBA     string // empty string means "absent"
}

// AuthorizeResult is the back-channel's answer to an authorize/revalidate
// call: the (possibly refreshed) triple, the approval verdict, and any new
// challenge material to stamp onto the response.
type AuthorizeResult struct {
	Triple             TokenTriple
	Approved           bool
	NewCBAChallenge    []byte
	NewAccessToken     string
	NewCBAToken        string
	NewChallengeState  string
	HasNewChallenge    bool
	HasNewChallengeSt  bool
}

// LoginRequest is leg 1 or leg 2 of the sign-in/sign-up flow.
type LoginRequest struct {
	ID               string
	Password         string
	CDPub            []byte
	CBAChallengeSign []byte
}

// LoginResponse is the back-channel's leg-1 answer.
type LoginResponse struct {
	Challenge    []byte
	SignupHints  string
	HasChallenge bool
}

// ErrBackChannel wraps any failure talking to the external auth service;
// per the error taxonomy this always surfaces as a 500 to the client.
type ErrBackChannel struct {
	Op  string
	Err error
}

func (e *ErrBackChannel) Error() string { return "auth_backchannel_failed: " + e.Op + ": " + e.Err.Error() }
func (e *ErrBackChannel) Unwrap() error { return e.Err }

// Client is the capability set the auth middleware needs from the external
// authentication service. Implementations: HTTPClient (real HTTP) and
// FakeClient (tests).
type Client interface {
	// CheckSignedIn is Authorize with an empty tag set.
	CheckSignedIn(ctx context.Context, triple TokenTriple) (AuthorizeResult, error)

	// Authorize validates the triple (and, if present, a signed challenge
	// response) against the required tags.
	Authorize(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte, tags []string) (AuthorizeResult, error)

	// RequestCBAUpdate is the periodic revalidation call: same shape as
	// Authorize but against the /revalidate back-channel operation and with
	// no required tags.
	RequestCBAUpdate(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte) (AuthorizeResult, error)

	SignUpStep1(ctx context.Context, req LoginRequest) (LoginResponse, error)
	SignUpStep2(ctx context.Context, req LoginRequest, signupHints string) (TokenTriple, error)
	SignInStep1(ctx context.Context, req LoginRequest) (LoginResponse, error)
	SignInStep2(ctx context.Context, req LoginRequest) (TokenTriple, error)

	// ProvisionAdmin creates the bootstrap admin account if it does not
	// already exist; called once at startup from LBRP_C3A_ADMCDPUB/ADMP.
	ProvisionAdmin(ctx context.Context, cdpub []byte, password string) error

	Logout(ctx context.Context, triple TokenTriple) error
}
