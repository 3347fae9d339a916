package server

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-core/internal/testutil"
	"github.com/giantswarm/oauth2-core/storage"
	storagemock "github.com/giantswarm/oauth2-core/storage/mock"
)

func seedRefreshToken(t *testing.T, store storage.Store, clientID string, scope []string, expiresAt time.Time) {
	t.Helper()
	testutil.Seed(t, store, testutil.Fixture{RefreshTokens: []*storage.RefreshToken{{
		RefreshToken: "rt",
		ClientID:     clientID,
		Username:     testutil.Username,
		Scope:        scope,
		ExpiresAt:    expiresAt,
	}}})
}

func TestRefreshTokenGrant_Errors(t *testing.T) {
	granted := []string{"read", "write"}

	tests := []struct {
		name      string
		clientID  string
		scope     []string
		expiresAt time.Time
		req       TokenRequest
		wantKind  ErrorKind
		wantDesc  string
	}{
		{
			name:     "missing refresh token",
			req:      TokenRequest{},
			wantKind: KindInvalidRequest,
			wantDesc: DescMissingParameter,
		},
		{
			name:     "malformed refresh token",
			req:      TokenRequest{RefreshToken: "rt\x00"},
			wantKind: KindInvalidRequest,
			wantDesc: DescInvalidParameter,
		},
		{
			name:     "unknown refresh token",
			req:      TokenRequest{RefreshToken: "other"},
			wantKind: KindInvalidGrant,
			wantDesc: DescRefreshTokenInvalid,
		},
		{
			name:      "issued to another client",
			clientID:  "other-client",
			scope:     granted,
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt"},
			wantKind:  KindInvalidGrant,
			wantDesc:  DescRefreshTokenInvalid,
		},
		{
			name:      "expired",
			scope:     granted,
			expiresAt: testNow.Add(-time.Nanosecond),
			req:       TokenRequest{RefreshToken: "rt"},
			wantKind:  KindInvalidGrant,
			wantDesc:  DescRefreshTokenExpired,
		},
		{
			name:      "malformed scope",
			scope:     granted,
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt", Scope: "read\twrite"},
			wantKind:  KindInvalidRequest,
			wantDesc:  DescInvalidParameter,
		},
		{
			name:      "scope beyond grant",
			scope:     granted,
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt", Scope: "write admin"},
			wantKind:  KindInvalidScope,
			wantDesc:  DescScopeExceeded,
		},
		{
			name:      "ungranted token asks for unknown scope",
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt", Scope: "delete"},
			wantKind:  KindInvalidScope,
			wantDesc:  DescScopeUnknown,
		},
		{
			name:      "ungranted token asks beyond authorization",
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt", Scope: "admin"},
			wantKind:  KindInvalidScope,
			wantDesc:  DescScopeExceeded,
		},
		{
			name:      "inherited scope no longer supported",
			scope:     []string{"read", "legacy"},
			expiresAt: testNow.Add(time.Hour),
			req:       TokenRequest{RefreshToken: "rt"},
			wantKind:  KindInvalidScope,
			wantDesc:  DescScopeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			if !tt.expiresAt.IsZero() {
				clientID := tt.clientID
				if clientID == "" {
					clientID = testutil.ClientID
				}
				seedRefreshToken(t, env.store, clientID, tt.scope, tt.expiresAt)
			}

			tt.req.GrantType = GrantTypeRefreshToken
			tt.req.ClientID = testutil.ClientID
			_, err := env.srv.Token(context.Background(), &tt.req)
			assertOAuthError(t, err, tt.wantKind, tt.wantDesc)
		})
	}
}

func TestRefreshTokenGrant_Success(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		scope     string
		wantScope []string
	}{
		{"inherits granted scope", testNow.Add(14 * 24 * time.Hour), "", []string{"read", "write"}},
		{"narrows scope", testNow.Add(time.Hour), "write", []string{"write"}},
		{"valid at the expiry instant", testNow, "", []string{"read", "write"}},
		{"previous expiry shorter than window", testNow.Add(time.Minute), "", []string{"read", "write"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			seedRefreshToken(t, env.store, testutil.ClientID, []string{"read", "write"}, tt.expiresAt)

			_, err := env.srv.Token(context.Background(), &TokenRequest{
				GrantType:    GrantTypeRefreshToken,
				ClientID:     testutil.ClientID,
				RefreshToken: "rt",
				Scope:        tt.scope,
			})
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}

			call := env.issuer.lastCall(t)
			if call.username != testutil.Username || !reflect.DeepEqual(call.scope, tt.wantScope) {
				t.Errorf("IssueToken called with %+v, want scope %v", call, tt.wantScope)
			}

			rt, err := env.store.GetRefreshToken(context.Background(), "rt")
			if err != nil {
				t.Fatalf("GetRefreshToken() error = %v", err)
			}
			if want := testNow.Add(5 * time.Minute); !rt.ExpiresAt.Equal(want) {
				t.Errorf("refresh token expires at %v, want %v", rt.ExpiresAt, want)
			}
		})
	}
}

func TestRefreshTokenGrant_ReusableWithinWindow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedRefreshToken(t, env.store, testutil.ClientID, []string{"read"}, testNow.Add(time.Hour))

	req := &TokenRequest{GrantType: GrantTypeRefreshToken, ClientID: testutil.ClientID, RefreshToken: "rt"}

	if _, err := env.srv.Token(context.Background(), req); err != nil {
		t.Fatalf("first refresh error = %v", err)
	}
	env.clock.Advance(4 * time.Minute)
	if _, err := env.srv.Token(context.Background(), req); err != nil {
		t.Fatalf("refresh within the window error = %v", err)
	}
	env.clock.Advance(5*time.Minute + time.Second)
	_, err := env.srv.Token(context.Background(), req)
	assertOAuthError(t, err, KindInvalidGrant, DescRefreshTokenExpired)
}

func TestRefreshTokenGrant_DeletedDuringRotation(t *testing.T) {
	store := storagemock.NewMockStore()
	t.Cleanup(store.Stop)
	env := newTestEnv(t, store, nil)
	seedRefreshToken(t, store, testutil.ClientID, []string{"read"}, testNow.Add(time.Hour))

	store.UpdateRefreshTokenExpiryFunc = func(context.Context, string, time.Time) error {
		return storage.ErrRefreshTokenNotFound
	}

	_, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		ClientID:     testutil.ClientID,
		RefreshToken: "rt",
	})
	assertOAuthError(t, err, KindInvalidGrant, DescRefreshTokenInvalid)
	if env.issuer.callCount() != 0 {
		t.Error("no token should be issued")
	}
}
