package session

import (
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/etution/etution-api/pkg/errors"
)

// Navigator receives forced navigation. The transport is the only component
// allowed to force navigation as a side effect of a failed call.
type Navigator interface {
	ToSignIn()
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) ToSignIn() { f() }

// Transport is an http.RoundTripper that authenticates every outbound API
// request with a freshly minted bearer credential and recovers from
// credential expiry.
//
// On a 401 or 403 response it performs exactly this sequence: terminate the
// local session, navigate the caller to sign-in, and re-raise the failure.
// There is no silent retry of the original request. The sequence is
// idempotent across concurrent in-flight requests: the store's Clear elects
// a single winner, so the caller is redirected at most once per session.
type Transport struct {
	store     *Store
	navigator Navigator
	base      http.RoundTripper
	logger    *zap.Logger
}

// NewTransport builds the credential-attaching transport. base defaults to
// http.DefaultTransport.
func NewTransport(store *Store, navigator Navigator, base http.RoundTripper, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{store: store, navigator: navigator, base: base, logger: logger}
}

// Client returns an *http.Client using this transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	token, hasIdentity, err := t.store.Credential(req.Context())
	if err != nil {
		// Credential minting failed while signed in: treat as expiry.
		t.expire()
		return nil, appErrors.Wrap(err, appErrors.ErrCredentialExpired.Code, appErrors.ErrCredentialExpired.Status, "failed to mint credential")
	}
	if hasIdentity {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.expire()
		// The response is handed back so the caller sees the original
		// failure; callers must not assume a retry would succeed.
		return resp, nil
	}

	return resp, nil
}

// expire clears the session and redirects to sign-in once. If the session
// was already cleared by a concurrent failure the navigation is skipped.
func (t *Transport) expire() {
	if !t.store.Clear() {
		return
	}
	t.logger.Info("session terminated after authorization failure")
	if t.navigator != nil {
		t.navigator.ToSignIn()
	}
}
