package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/internal/testutil"
	providermock "github.com/giantswarm/oauth2-core/providers/mock"
	"github.com/giantswarm/oauth2-core/storage"
	"github.com/giantswarm/oauth2-core/storage/memory"
)

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type issueCall struct {
	clientID string
	username string
	scope    []string
}

// fakeIssuer records every call and mints predictable tokens
type fakeIssuer struct {
	mu    sync.Mutex
	calls []issueCall
	err   error
}

func (f *fakeIssuer) IssueToken(_ context.Context, clientID, username string, scope []string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, issueCall{clientID: clientID, username: username, scope: scope})
	if f.err != nil {
		return nil, f.err
	}
	token := &oauth2.Token{
		AccessToken: fmt.Sprintf("access-%d", len(f.calls)),
		TokenType:   "Bearer",
		Expiry:      testNow.Add(time.Hour),
	}
	return token.WithExtra(map[string]any{"scope": strings.Join(scope, " ")}), nil
}

func (f *fakeIssuer) lastCall(t *testing.T) issueCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("IssueToken was not called")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	srv    *Server
	store  storage.Store
	issuer *fakeIssuer
	clock  *testutil.MockTime
	users  *providermock.MockAuthenticator
}

// newTestEnv builds a server over store (a fresh memory store when nil)
// seeded with testutil.DefaultFixture.
func newTestEnv(t *testing.T, store storage.Store, cfg *Config) *testEnv {
	t.Helper()

	if store == nil {
		ms := memory.New()
		t.Cleanup(ms.Stop)
		store = ms
	}
	testutil.Seed(t, store, testutil.DefaultFixture(t))

	env := &testEnv{
		store:  store,
		issuer: &fakeIssuer{},
		clock:  testutil.NewMockTime(testNow),
		users:  providermock.NewMockAuthenticator(map[string]string{testutil.Username: testutil.Password}),
	}

	srv, err := New(Dependencies{
		Store:         store,
		Issuer:        env.issuer,
		Authenticator: env.users,
		Config:        cfg,
		Now:           env.clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.srv = srv
	return env
}

// authorize runs a code authorization request for alice on the default client
func (e *testEnv) authorize(t *testing.T, scope string) *AuthorizeResponse {
	t.Helper()
	resp, err := e.srv.Authorize(context.Background(), &AuthorizeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     testutil.ClientID,
		State:        "xyz",
		Scope:        scope,
		Username:     testutil.Username,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	return resp
}

func assertOAuthError(t *testing.T, err error, kind ErrorKind, desc string) *Error {
	t.Helper()

	var oauthErr *Error
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %v, want *Error of kind %s", err, kind)
	}
	if oauthErr.Kind != kind {
		t.Errorf("Kind = %q, want %q (description %q)", oauthErr.Kind, kind, oauthErr.Description)
	}
	if desc != "" && oauthErr.Description != desc {
		t.Errorf("Description = %q, want %q", oauthErr.Description, desc)
	}
	return oauthErr
}
