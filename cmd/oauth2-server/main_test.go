package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	oauth "github.com/giantswarm/oauth2-core"
	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/internal/config"
)

const testConfig = `
clients:
  - id: cli
    secret: cli-secret
    grant_types: [password, refresh_token]
scopes:
  - name: read
users:
  - username: alice
    password: wonderland
authorizations:
  - client: cli
    username: alice
    scope: [read]
    grant_types: [password]
`

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRouter(t *testing.T, inst *instrumentation.Instrumentation) http.Handler {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	ctx := context.Background()
	logger := discardLogger()

	store, closeStore, err := openStore(ctx, cfg.Storage, inst, logger)
	require.NoError(t, err)
	t.Cleanup(closeStore)
	require.NoError(t, cfg.Seed(ctx, store))

	tokenIssuer, err := newIssuer(cfg.Tokens, cfg.Issuer(), store)
	require.NoError(t, err)

	authenticator, err := newAuthenticator(cfg)
	require.NoError(t, err)
	require.NotNil(t, authenticator)

	oc := cfg.OAuthServer()
	oc.Logger = logger
	oc.Instrumentation = inst
	srv, err := oauth.NewServer(store, tokenIssuer, authenticator, oc)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	return newRouter(oauth.NewHandler(srv, oauth.BasicAuthSubject(srv.Authenticator()), logger), inst, logger)
}

func TestRouter_PasswordGrant(t *testing.T) {
	router := newTestRouter(t, nil)

	form := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wonderland"},
		"scope":      {"read"},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("cli", "cli-secret")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp oauth.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "read", resp.Scope)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/token", http.StatusMethodNotAllowed},
		{http.MethodPost, "/authorize", http.StatusMethodNotAllowed},
		{http.MethodGet, "/authorize?client_id=cli", http.StatusUnauthorized},
		{http.MethodGet, "/metrics", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	inst, err := newInstrumentation(config.InstrumentationConfig{
		Enabled:         true,
		ServiceName:     "oauth2-server-test",
		MetricsExporter: "prometheus",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	router := newTestRouter(t, inst)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewInstrumentation_Disabled(t *testing.T) {
	inst, err := newInstrumentation(config.InstrumentationConfig{})
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestOpenStore_SQL(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	store, closeStore, err := openStore(ctx, config.StorageConfig{
		Backend: config.StorageSQL,
		SQL:     config.SQLConfig{DSN: filepath.Join(t.TempDir(), "oauth2.db")},
	}, nil, logger)
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Seed(ctx, store))

	client, err := store.GetClient(ctx, "cli")
	require.NoError(t, err)
	assert.Equal(t, "cli", client.ClientID)

	closeStore()
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, _, err := openStore(context.Background(), config.StorageConfig{Backend: "etcd"}, nil, discardLogger())
	assert.ErrorContains(t, err, "etcd")
}

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) DeleteExpired(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestPurgeExpired(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		purgeExpired(ctx, p, 5*time.Millisecond, discardLogger())
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purgeExpired did not return after cancel")
	}
}

func TestNewIssuer(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	store, closeStore, err := openStore(context.Background(), cfg.Storage, nil, discardLogger())
	require.NoError(t, err)
	t.Cleanup(closeStore)

	_, err = newIssuer(cfg.Tokens, cfg.Issuer(), store)
	assert.NoError(t, err, "opaque")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "signing.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(keyFile, pemBytes, 0o600))

	_, err = newIssuer(config.TokenConfig{
		Type:           config.IssuerJWT,
		Issuer:         "https://auth.example.com",
		SigningKeyFile: keyFile,
	}, cfg.Issuer(), store)
	assert.NoError(t, err, "jwt")

	_, err = newIssuer(config.TokenConfig{
		Type:           config.IssuerJWT,
		Issuer:         "https://auth.example.com",
		SigningKeyFile: filepath.Join(t.TempDir(), "missing.pem"),
	}, cfg.Issuer(), store)
	assert.Error(t, err, "missing key file")

	_, err = newIssuer(config.TokenConfig{Type: "macaroon"}, cfg.Issuer(), store)
	assert.ErrorContains(t, err, "macaroon")
}

func TestNewAuthenticator_NoUsers(t *testing.T) {
	auth, err := newAuthenticator(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func TestHashSecretCmd(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"argument", "", []string{"hash-secret", "--cost", "4", "s3cret"}},
		{"stdin", "s3cret\n", []string{"hash-secret", "--cost", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			hash := strings.TrimSpace(out)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
		})
	}

	_, err := runCommand(t, "", "hash-secret")
	assert.Error(t, err, "empty stdin")
}

func TestVersionCmd(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "oauth2-server dev\n", out)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := config.Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, config.StorageSQL, cfg.Storage.Backend)
	assert.Len(t, cfg.Clients, 2)
	assert.Len(t, cfg.Authorizations, 2)
}
