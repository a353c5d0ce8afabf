package authclient

import (
	"context"
	"crypto/ed25519"
	"sync"
)

// FakeClient is an in-memory Client used by tests, standing in for the
// external auth service the way the teacher's httptest upstreams stand in
// for a real backend.
type FakeClient struct {
	mu        sync.Mutex
	Users     map[string]fakeUser
	Approve   bool
	GrantTags map[string]struct{}
}

type fakeUser struct {
	password string
	pub      ed25519.PublicKey
}

// NewFakeClient returns a FakeClient that approves every authorize call by
// default.
func NewFakeClient() *FakeClient {
	return &FakeClient{Users: make(map[string]fakeUser), Approve: true, GrantTags: make(map[string]struct{})}
}

func (f *FakeClient) CheckSignedIn(ctx context.Context, triple TokenTriple) (AuthorizeResult, error) {
	return f.Authorize(ctx, triple, "", nil, nil)
}

func (f *FakeClient) Authorize(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte, tags []string) (AuthorizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	approved := f.Approve
	for _, tag := range tags {
		if _, ok := f.GrantTags[tag]; !ok {
			approved = false
		}
	}
	return AuthorizeResult{Triple: triple, Approved: approved}, nil
}

func (f *FakeClient) RequestCBAUpdate(ctx context.Context, triple TokenTriple, challengeState string, challengeSign []byte) (AuthorizeResult, error) {
	return AuthorizeResult{Triple: triple, Approved: true}, nil
}

func (f *FakeClient) SignUpStep1(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	return LoginResponse{Challenge: []byte("challenge-" + req.ID), HasChallenge: true, SignupHints: "hints-" + req.ID}, nil
}

func (f *FakeClient) SignUpStep2(ctx context.Context, req LoginRequest, signupHints string) (TokenTriple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[req.ID] = fakeUser{password: req.Password, pub: ed25519.PublicKey(req.CDPub)}
	return TokenTriple{Access: "access-" + req.ID, Refresh: "refresh-" + req.ID}, nil
}

func (f *FakeClient) SignInStep1(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	return LoginResponse{Challenge: []byte("challenge-" + req.ID), HasChallenge: true}, nil
}

func (f *FakeClient) SignInStep2(ctx context.Context, req LoginRequest) (TokenTriple, error) {
	return TokenTriple{Access: "access-" + req.ID, Refresh: "refresh-" + req.ID}, nil
}

func (f *FakeClient) ProvisionAdmin(ctx context.Context, cdpub []byte, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Users["admin"]; exists {
		return nil
	}
	f.Users["admin"] = fakeUser{password: password, pub: ed25519.PublicKey(cdpub)}
	return nil
}

func (f *FakeClient) Logout(ctx context.Context, triple TokenTriple) error { return nil }

var _ Client = (*FakeClient)(nil)
