package server

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/giantswarm/oauth2-core/internal/testutil"
	"github.com/giantswarm/oauth2-core/providers"
)

func TestPasswordGrant(t *testing.T) {
	tests := []struct {
		name      string
		req       TokenRequest
		wantKind  ErrorKind
		wantDesc  string
		wantScope []string
	}{
		{
			name:      "no scope",
			req:       TokenRequest{Username: testutil.Username, Password: testutil.Password},
			wantScope: nil,
		},
		{
			name:      "authorized scope",
			req:       TokenRequest{Username: testutil.Username, Password: testutil.Password, Scope: "read"},
			wantScope: []string{"read"},
		},
		{
			name:     "missing username",
			req:      TokenRequest{Password: testutil.Password},
			wantKind: KindInvalidRequest,
			wantDesc: DescMissingParameter,
		},
		{
			name:     "missing password",
			req:      TokenRequest{Username: testutil.Username},
			wantKind: KindInvalidRequest,
			wantDesc: DescMissingParameter,
		},
		{
			name:     "blank username",
			req:      TokenRequest{Username: "   ", Password: testutil.Password},
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "line break in password",
			req:      TokenRequest{Username: testutil.Username, Password: "pass\r\nword"},
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "malformed scope",
			req:      TokenRequest{Username: testutil.Username, Password: testutil.Password, Scope: "read  write"},
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "unknown scope",
			req:      TokenRequest{Username: testutil.Username, Password: testutil.Password, Scope: "read delete"},
			wantKind: KindInvalidScope,
			wantDesc: DescScopeUnknown,
		},
		{
			name:     "scope not authorized",
			req:      TokenRequest{Username: testutil.Username, Password: testutil.Password, Scope: "admin"},
			wantKind: KindInvalidScope,
			wantDesc: DescScopeExceeded,
		},
		{
			name:     "wrong password",
			req:      TokenRequest{Username: testutil.Username, Password: "nope"},
			wantKind: KindInvalidGrant,
			wantDesc: DescInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)

			tt.req.GrantType = GrantTypePassword
			tt.req.ClientID = testutil.ClientID
			token, err := env.srv.Token(context.Background(), &tt.req)

			if tt.wantKind != "" {
				assertOAuthError(t, err, tt.wantKind, tt.wantDesc)
				return
			}
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if token == nil {
				t.Fatal("Token() returned nil token")
			}
			call := env.issuer.lastCall(t)
			if call.username != testutil.Username || call.clientID != testutil.ClientID {
				t.Errorf("IssueToken called with %+v", call)
			}
			if !reflect.DeepEqual(call.scope, tt.wantScope) {
				t.Errorf("issued scope = %v, want %v", call.scope, tt.wantScope)
			}
		})
	}
}

func TestPasswordGrant_AuthenticatorErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantDesc string
	}{
		{"throttled", providers.ErrTooManyAttempts, KindInvalidGrant, DescInvalidCredentials},
		{"directory down", errors.New("ldap: connection refused"), KindServerError, DescServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			env.users.AuthenticateFunc = func(context.Context, string, string) (*providers.UserInfo, error) {
				return nil, tt.err
			}

			_, err := env.srv.Token(context.Background(), &TokenRequest{
				GrantType: GrantTypePassword,
				ClientID:  testutil.ClientID,
				Username:  testutil.Username,
				Password:  testutil.Password,
			})
			assertOAuthError(t, err, tt.wantKind, tt.wantDesc)
		})
	}
}

func TestPasswordGrant_UsesCanonicalUsername(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.users.AuthenticateFunc = func(context.Context, string, string) (*providers.UserInfo, error) {
		return &providers.UserInfo{Username: testutil.Username}, nil
	}

	_, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType: GrantTypePassword,
		ClientID:  testutil.ClientID,
		Username:  "ALICE",
		Password:  testutil.Password,
		Scope:     "write",
	})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got := env.issuer.lastCall(t).username; got != testutil.Username {
		t.Errorf("issued for %q, want %q", got, testutil.Username)
	}
}
