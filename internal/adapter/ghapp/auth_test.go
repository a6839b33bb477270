package ghapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrivateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, base64.StdEncoding.EncodeToString(pemBytes)
}

func TestNewAppAuth_Validation(t *testing.T) {
	_, keyB64 := testPrivateKey(t)

	_, err := NewAppAuth(0, keyB64, "https://api.github.com", nil)
	require.Error(t, err)

	_, err = NewAppAuth(42, "", "https://api.github.com", nil)
	require.Error(t, err)

	_, err = NewAppAuth(42, "not-base64!!!", "https://api.github.com", nil)
	require.Error(t, err)

	_, err = NewAppAuth(42, base64.StdEncoding.EncodeToString([]byte("not a pem")), "https://api.github.com", nil)
	require.Error(t, err)

	auth, err := NewAppAuth(42, keyB64, "https://api.github.com", nil)
	require.NoError(t, err)
	assert.NotNil(t, auth)
}

func TestAppAuth_JWTClaims(t *testing.T) {
	key, keyB64 := testPrivateKey(t)
	auth, err := NewAppAuth(42, keyB64, "https://api.github.com", nil)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	auth.now = func() time.Time { return now }
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = time.Now })

	signed, err := auth.appJWT()
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(signed, &jwt.StandardClaims{}, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(*jwt.StandardClaims)
	assert.Equal(t, "42", claims.Issuer)
	assert.Equal(t, now.Add(-60*time.Second).Unix(), claims.IssuedAt)
	assert.Equal(t, now.Add(10*time.Minute).Unix(), claims.ExpiresAt)
}

func TestAppAuth_InstallationTokenCaching(t *testing.T) {
	_, keyB64 := testPrivateKey(t)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/app/installations/7/access_tokens", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		expiry := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `{"token": "ghs_abc%d", "expires_at": %q}`, calls, expiry)
	}))
	t.Cleanup(server.Close)

	auth, err := NewAppAuth(42, keyB64, server.URL, server.Client())
	require.NoError(t, err)

	token, err := auth.InstallationToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "ghs_abc1", token)

	// Second request is served from cache.
	token, err = auth.InstallationToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "ghs_abc1", token)
	assert.Equal(t, 1, calls)
}

func TestAppAuth_RefreshesNearExpiry(t *testing.T) {
	_, keyB64 := testPrivateKey(t)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		expiry := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `{"token": "ghs_abc%d", "expires_at": %q}`, calls, expiry)
	}))
	t.Cleanup(server.Close)

	auth, err := NewAppAuth(42, keyB64, server.URL, server.Client())
	require.NoError(t, err)

	_, err = auth.InstallationToken(context.Background(), 7)
	require.NoError(t, err)

	// Jump to inside the refresh margin: the cached token is discarded.
	auth.now = func() time.Time { return time.Now().Add(56 * time.Minute) }

	token, err := auth.InstallationToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "ghs_abc2", token)
	assert.Equal(t, 2, calls)
}

func TestAppAuth_TokenEndpointError(t *testing.T) {
	_, keyB64 := testPrivateKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	t.Cleanup(server.Close)

	auth, err := NewAppAuth(42, keyB64, server.URL, server.Client())
	require.NoError(t, err)

	_, err = auth.InstallationToken(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestAppAuth_CachesPerInstallation(t *testing.T) {
	_, keyB64 := testPrivateKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expiry := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `{"token": "token-for%s", "expires_at": %q}`, r.URL.Path, expiry)
	}))
	t.Cleanup(server.Close)

	auth, err := NewAppAuth(42, keyB64, server.URL, server.Client())
	require.NoError(t, err)

	tokenA, err := auth.InstallationToken(context.Background(), 1)
	require.NoError(t, err)
	tokenB, err := auth.InstallationToken(context.Background(), 2)
	require.NoError(t, err)

	assert.NotEqual(t, tokenA, tokenB)
}
