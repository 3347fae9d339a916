package server

import (
	"context"
	"encoding/hex"
	"net/url"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-core/internal/testutil"
	"github.com/giantswarm/oauth2-core/storage"
	"github.com/giantswarm/oauth2-core/storage/memory"
)

func TestNew_Validation(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	if _, err := New(Dependencies{Issuer: &fakeIssuer{}}); err == nil {
		t.Error("New() without store should fail")
	}
	if _, err := New(Dependencies{Store: store}); err == nil {
		t.Error("New() without issuer should fail")
	}
	if _, err := New(Dependencies{
		Store:  store,
		Issuer: &fakeIssuer{},
		Config: &Config{GrantTypes: []string{"client_credentials"}},
	}); err == nil {
		t.Error("New() with an unknown grant type should fail")
	}
	if _, err := New(Dependencies{
		Store:  store,
		Issuer: &fakeIssuer{},
		Config: &Config{GrantTypes: []string{GrantTypePassword, GrantTypePassword}},
	}); err == nil {
		t.Error("New() with a duplicate grant type should fail")
	}
}

func TestNew_RegistersConfiguredTypesInOrder(t *testing.T) {
	env := newTestEnv(t, nil, &Config{GrantTypes: []string{GrantTypeRefreshToken, GrantTypePassword}})

	if got, want := env.srv.GrantTypes.Types(), []string{GrantTypeRefreshToken, GrantTypePassword}; !reflect.DeepEqual(got, want) {
		t.Errorf("GrantTypes.Types() = %v, want %v", got, want)
	}

	// no grant_type selects refresh_token, which then misses its parameter
	_, err := env.srv.Token(context.Background(), &TokenRequest{ClientID: testutil.ClientID})
	assertOAuthError(t, err, KindInvalidRequest, DescMissingParameter)
}

func TestServer_Token_UnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	_, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType: "client_credentials",
		ClientID:  testutil.ClientID,
	})
	assertOAuthError(t, err, KindUnsupportedGrantType, DescUnsupportedGrantType)
}

func TestServer_Token_DefaultGrantType(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// authorization_code is registered first and needs a code
	_, err := env.srv.Token(context.Background(), &TokenRequest{ClientID: testutil.ClientID})
	assertOAuthError(t, err, KindInvalidRequest, DescMissingParameter)
}

func TestServer_Token_PasswordGrantWithoutAuthenticator(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	testutil.Seed(t, store, testutil.DefaultFixture(t))

	srv, err := New(Dependencies{Store: store, Issuer: &fakeIssuer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = srv.Token(context.Background(), &TokenRequest{
		GrantType: GrantTypePassword,
		ClientID:  testutil.ClientID,
		Username:  testutil.Username,
		Password:  testutil.Password,
	})
	assertOAuthError(t, err, KindUnsupportedGrantType, DescUnsupportedGrantType)
}

func TestServer_Token_ClientGrantTypeRestriction(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if err := env.store.SaveClient(ctx, &storage.Client{
		ClientID:   "password-only",
		GrantTypes: []string{GrantTypePassword},
	}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	_, err := env.srv.Token(ctx, &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		ClientID:     "password-only",
		RefreshToken: "anything",
	})
	assertOAuthError(t, err, KindUnauthorizedClient, DescGrantTypeNotPermitted)

	_, err = env.srv.Token(ctx, &TokenRequest{
		GrantType: GrantTypeRefreshToken,
		ClientID:  "unknown-client",
	})
	assertOAuthError(t, err, KindInvalidClient, DescClientAuthFailed)
}

// Authorization request for a client without a registered redirect URI
// followed by two redemptions of the issued code.
func TestServer_AuthorizeThenRedeemTwice(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	testutil.Seed(t, env.store, testutil.Fixture{
		Clients: []*storage.Client{{ClientID: "abc"}},
		Authorizations: []*storage.Authorization{{
			ClientID:   "abc",
			Username:   testutil.Username,
			Scope:      []string{"read"},
			GrantTypes: []string{GrantTypeAuthorizationCode},
		}},
	})

	resp, err := env.srv.Authorize(ctx, &AuthorizeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     "abc",
		RedirectURI:  "https://app/cb",
		State:        "xyz",
		Scope:        "read",
		Username:     testutil.Username,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	location, err := url.Parse(resp.RedirectURL)
	if err != nil {
		t.Fatalf("RedirectURL %q does not parse: %v", resp.RedirectURL, err)
	}
	if location.Scheme != "https" || location.Host != "app" || location.Path != "/cb" {
		t.Errorf("RedirectURL = %q, want https://app/cb?...", resp.RedirectURL)
	}
	code := location.Query().Get("code")
	if len(code) < 128 {
		t.Errorf("code length = %d, want at least 128", len(code))
	}
	if _, err := hex.DecodeString(code); err != nil {
		t.Errorf("code %q is not hex: %v", code, err)
	}
	if location.Query().Get("state") != "xyz" {
		t.Errorf("state = %q, want xyz", location.Query().Get("state"))
	}

	redeem := &TokenRequest{
		GrantType:   GrantTypeAuthorizationCode,
		ClientID:    "abc",
		Code:        code,
		RedirectURI: "https://app/cb",
	}

	token, err := env.srv.Token(ctx, redeem)
	if err != nil {
		t.Fatalf("first redemption error = %v", err)
	}
	if token.AccessToken == "" {
		t.Error("first redemption returned no access token")
	}
	call := env.issuer.lastCall(t)
	if call.clientID != "abc" || call.username != testutil.Username || !reflect.DeepEqual(call.scope, []string{"read"}) {
		t.Errorf("IssueToken called with %+v", call)
	}

	_, err = env.srv.Token(ctx, redeem)
	assertOAuthError(t, err, KindInvalidGrant, DescInvalidGrant)
	if env.issuer.callCount() != 1 {
		t.Errorf("IssueToken called %d times, want 1", env.issuer.callCount())
	}
}

func TestServer_RefreshScopeBeyondGrant(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	testutil.Seed(t, env.store, testutil.Fixture{
		RefreshTokens: []*storage.RefreshToken{{
			RefreshToken: "rt",
			ClientID:     testutil.ClientID,
			Username:     testutil.Username,
			Scope:        []string{"read", "write"},
			ExpiresAt:    testNow.Add(time.Hour),
		}},
	})

	_, err := env.srv.Token(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		ClientID:     testutil.ClientID,
		RefreshToken: "rt",
		Scope:        "write admin",
	})
	assertOAuthError(t, err, KindInvalidScope, DescScopeExceeded)
}

func TestServer_PasswordWrongCredentials(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, creds := range [][2]string{
		{testutil.Username, "wrong password"},
		{"mallory", testutil.Password},
	} {
		_, err := env.srv.Token(context.Background(), &TokenRequest{
			GrantType: GrantTypePassword,
			ClientID:  testutil.ClientID,
			Username:  creds[0],
			Password:  creds[1],
		})
		assertOAuthError(t, err, KindInvalidGrant, DescInvalidCredentials)
	}
}

func TestServer_ConcurrentRedemption(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := env.authorize(t, "read")

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := env.srv.Token(context.Background(), &TokenRequest{
				GrantType: GrantTypeAuthorizationCode,
				ClientID:  testutil.ClientID,
				Code:      resp.Code,
			})
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("successful redemptions = %d, want 1", got)
	}
}

func TestServer_Authorize_UnknownResponseType(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	_, err := env.srv.Authorize(context.Background(), &AuthorizeRequest{
		ResponseType: "token",
		ClientID:     testutil.ClientID,
		State:        "xyz",
		Username:     testutil.Username,
	})
	assertOAuthError(t, err, KindUnsupportedGrantType, DescUnsupportedGrantType)
}
