package server

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-core/internal/testutil"
	"github.com/giantswarm/oauth2-core/storage"
	storagemock "github.com/giantswarm/oauth2-core/storage/mock"
)

func TestCodeResponseType_Errors(t *testing.T) {
	base := AuthorizeRequest{
		ClientID: testutil.ClientID,
		State:    "xyz",
		Username: testutil.Username,
	}

	tests := []struct {
		name         string
		mutate       func(*AuthorizeRequest)
		wantKind     ErrorKind
		wantDesc     string
		wantRedirect string
		wantState    string
	}{
		{
			name:     "no authenticated subject",
			mutate:   func(r *AuthorizeRequest) { r.Username = "" },
			wantKind: KindServerError,
			wantDesc: DescServerError,
		},
		{
			name:     "missing client_id",
			mutate:   func(r *AuthorizeRequest) { r.ClientID = "" },
			wantKind: KindInvalidRequest,
			wantDesc: DescMissingParameter,
		},
		{
			name:     "malformed client_id",
			mutate:   func(r *AuthorizeRequest) { r.ClientID = "bad\nclient" },
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "unknown client",
			mutate:   func(r *AuthorizeRequest) { r.ClientID = "unknown" },
			wantKind: KindUnauthorizedClient,
			wantDesc: DescUnauthorizedClient,
		},
		{
			name:     "redirect URI mismatch",
			mutate:   func(r *AuthorizeRequest) { r.RedirectURI = "https://evil.example.com/cb" },
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "redirect URI with fragment",
			mutate:   func(r *AuthorizeRequest) { r.RedirectURI = testutil.RedirectURI + "#x" },
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:         "missing state",
			mutate:       func(r *AuthorizeRequest) { r.State = "" },
			wantKind:     KindInvalidRequest,
			wantDesc:     DescMissingParameter,
			wantRedirect: testutil.RedirectURI,
		},
		{
			name:         "malformed state",
			mutate:       func(r *AuthorizeRequest) { r.State = "x\ny" },
			wantKind:     KindInvalidRequest,
			wantDesc:     DescInvalidParameter,
			wantRedirect: testutil.RedirectURI,
		},
		{
			name:         "malformed scope",
			mutate:       func(r *AuthorizeRequest) { r.Scope = `read "write"` },
			wantKind:     KindInvalidRequest,
			wantDesc:     DescInvalidParameter,
			wantRedirect: testutil.RedirectURI,
			wantState:    "xyz",
		},
		{
			name:         "unknown scope",
			mutate:       func(r *AuthorizeRequest) { r.Scope = "read delete" },
			wantKind:     KindInvalidScope,
			wantDesc:     DescScopeUnknown,
			wantRedirect: testutil.RedirectURI,
			wantState:    "xyz",
		},
		{
			name:         "scope not authorized",
			mutate:       func(r *AuthorizeRequest) { r.Scope = "admin" },
			wantKind:     KindInvalidScope,
			wantDesc:     DescScopeInvalid,
			wantRedirect: testutil.RedirectURI,
			wantState:    "xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			req := base
			tt.mutate(&req)

			_, err := env.srv.Authorize(context.Background(), &req)
			oauthErr := assertOAuthError(t, err, tt.wantKind, tt.wantDesc)
			if oauthErr.RedirectURI != tt.wantRedirect {
				t.Errorf("RedirectURI = %q, want %q", oauthErr.RedirectURI, tt.wantRedirect)
			}
			if oauthErr.State != tt.wantState {
				t.Errorf("State = %q, want %q", oauthErr.State, tt.wantState)
			}
		})
	}
}

func TestCodeResponseType_MissingRedirectURI(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	testutil.Seed(t, env.store, testutil.Fixture{Clients: []*storage.Client{{ClientID: "abc"}}})

	_, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ClientID: "abc",
		State:    "xyz",
		Username: testutil.Username,
	})
	oauthErr := assertOAuthError(t, err, KindInvalidRequest, DescMissingParameter)
	if oauthErr.RedirectURI != "" {
		t.Errorf("RedirectURI = %q, want none", oauthErr.RedirectURI)
	}
}

func TestCodeResponseType_GrantTypeNotAuthorized(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	testutil.Seed(t, env.store, testutil.Fixture{Authorizations: []*storage.Authorization{{
		ClientID:   testutil.ClientID,
		Username:   testutil.Username,
		Scope:      []string{"read"},
		GrantTypes: []string{GrantTypePassword},
	}}})

	_, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ClientID: testutil.ClientID,
		State:    "xyz",
		Scope:    "read",
		Username: testutil.Username,
	})
	oauthErr := assertOAuthError(t, err, KindInvalidGrant, DescGrantNotAuthorized)
	if oauthErr.RedirectURI != testutil.RedirectURI || oauthErr.State != "xyz" {
		t.Errorf("error redirect = %q state = %q", oauthErr.RedirectURI, oauthErr.State)
	}
}

func TestCodeResponseType_PersistsCode(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := env.authorize(t, "read write")

	if len(resp.Code) != 128 {
		t.Errorf("len(code) = %d, want 128", len(resp.Code))
	}
	if !resp.ExpiresAt.Equal(testNow.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want now+10m", resp.ExpiresAt)
	}

	code, err := env.store.GetAuthorizationCode(context.Background(), resp.Code)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if code.ClientID != testutil.ClientID || code.Username != testutil.Username {
		t.Errorf("stored code = %+v", code)
	}
	if code.RedirectURI != testutil.RedirectURI {
		t.Errorf("stored redirect URI = %q, want %q", code.RedirectURI, testutil.RedirectURI)
	}
	if len(code.Scope) != 2 {
		t.Errorf("stored scope = %v, want read write", code.Scope)
	}

	other := env.authorize(t, "read")
	if other.Code == resp.Code {
		t.Error("two authorizations produced the same code")
	}
}

func TestCodeResponseType_PrefixRedirectKeepsQuery(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ClientID:    testutil.ClientID,
		RedirectURI: "https://APP.example.com/cb/extra?tenant=a",
		State:       "xyz",
		Username:    testutil.Username,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	u, err := url.Parse(resp.RedirectURL)
	if err != nil {
		t.Fatalf("RedirectURL does not parse: %v", err)
	}
	q := u.Query()
	if u.Path != "/cb/extra" || q.Get("tenant") != "a" || q.Get("code") != resp.Code || q.Get("state") != "xyz" {
		t.Errorf("RedirectURL = %q", resp.RedirectURL)
	}
}

func TestCodeResponseType_ExactMatching(t *testing.T) {
	env := newTestEnv(t, nil, &Config{RedirectURIMatching: RedirectMatchExact})

	_, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ClientID:    testutil.ClientID,
		RedirectURI: testutil.RedirectURI + "/extra",
		State:       "xyz",
		Username:    testutil.Username,
	})
	assertOAuthError(t, err, KindInvalidRequest, DescInvalidParameter)
}

func TestCodeResponseType_CodeLengthFromConfig(t *testing.T) {
	env := newTestEnv(t, nil, &Config{AuthorizationCodeBytes: 32})
	if got := len(env.authorize(t, "").Code); got != 64 {
		t.Errorf("len(code) = %d, want 64", got)
	}
}

func TestCodeResponseType_SaveFailureRedirects(t *testing.T) {
	store := storagemock.NewMockStore()
	t.Cleanup(store.Stop)
	env := newTestEnv(t, store, nil)
	store.SaveAuthorizationCodeFunc = func(context.Context, *storage.AuthorizationCode) error {
		return errors.New("disk full")
	}

	_, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ClientID: testutil.ClientID,
		State:    "xyz",
		Username: testutil.Username,
	})
	oauthErr := assertOAuthError(t, err, KindServerError, DescServerError)
	if oauthErr.RedirectURI != testutil.RedirectURI || oauthErr.State != "xyz" {
		t.Errorf("server_error redirect = %q state = %q", oauthErr.RedirectURI, oauthErr.State)
	}
}
