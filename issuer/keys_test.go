package issuer

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth2-core/internal/testutil"
)

func TestLoadSigningKey(t *testing.T) {
	key := newSigningKey(t)
	dir := t.TempDir()

	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(pkcs1, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	for _, path := range []string{pkcs1, pkcs8} {
		loaded, err := LoadSigningKey(path)
		require.NoError(t, err, path)
		assert.True(t, key.Equal(loaded), path)
	}

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
	_, err = LoadSigningKey(garbage)
	assert.Error(t, err)

	_, err = LoadSigningKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestKeyID(t *testing.T) {
	key := newSigningKey(t)

	first, err := KeyID(&key.PublicKey)
	require.NoError(t, err)
	second, err := KeyID(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 43, "base64url of a SHA-256 digest")

	other, err := KeyID(&newSigningKey(t).PublicKey)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestNewJWT_DerivesKeyID(t *testing.T) {
	key := newSigningKey(t)
	iss, err := NewJWT(newStore(t), JWTConfig{Issuer: "https://auth.example.com", SigningKey: key})
	require.NoError(t, err)

	token, err := iss.IssueToken(context.Background(), testutil.ClientID, testutil.Username, nil)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, &Claims{})
	require.NoError(t, err)

	want, err := KeyID(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, want, parsed.Header["kid"])
}
