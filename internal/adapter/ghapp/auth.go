package ghapp

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/replikanti/flowlint/internal/adapter/rest"
)

const (
	// appTokenTTL is the lifetime of the signed App JWT. GitHub caps it at
	// ten minutes.
	appTokenTTL = 10 * time.Minute

	// clockDrift backdates the JWT's issued-at so a skewed clock on either
	// side does not reject the token.
	clockDrift = 60 * time.Second

	// tokenRefreshMargin renews cached installation tokens this long before
	// they expire.
	tokenRefreshMargin = 5 * time.Minute
)

// AppAuth exchanges a GitHub App's private key for short-lived installation
// access tokens, caching one token per installation.
type AppAuth struct {
	appID      int64
	privateKey *rsa.PrivateKey
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[int64]cachedToken

	// now is injectable for tests.
	now func() time.Time
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewAppAuth parses the base64-encoded PEM private key and returns an
// authenticator for the given App id.
func NewAppAuth(appID int64, privateKeyBase64, baseURL string, httpClient *http.Client) (*AppAuth, error) {
	if appID == 0 {
		return nil, fmt.Errorf("github app id is required")
	}
	if privateKeyBase64 == "" {
		return nil, fmt.Errorf("github app private key is required")
	}

	pemBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &AppAuth{
		appID:      appID,
		privateKey: key,
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     make(map[int64]cachedToken),
		now:        time.Now,
	}, nil
}

// appJWT signs a short-lived RS256 JWT identifying the App itself.
func (a *AppAuth) appJWT() (string, error) {
	now := a.now()
	claims := jwt.StandardClaims{
		IssuedAt:  now.Add(-clockDrift).Unix(),
		ExpiresAt: now.Add(appTokenTTL).Unix(),
		Issuer:    fmt.Sprintf("%d", a.appID),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// InstallationToken returns a valid installation access token, creating one
// through the API when the cache is empty or near expiry.
func (a *AppAuth) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	a.mu.Lock()
	cached, ok := a.tokens[installationID]
	a.mu.Unlock()
	if ok && a.now().Before(cached.expiresAt.Add(-tokenRefreshMargin)) {
		return cached.token, nil
	}

	appJWT, err := a.appJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", rest.NewTimeoutError(serviceName, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", MapHTTPError(resp.StatusCode, bodyBytes)
	}

	var tokenResp installationTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339, tokenResp.ExpiresAt)
	if err != nil {
		// Tokens last an hour; fall back to a conservative window.
		expiresAt = a.now().Add(30 * time.Minute)
	}

	a.mu.Lock()
	a.tokens[installationID] = cachedToken{token: tokenResp.Token, expiresAt: expiresAt}
	a.mu.Unlock()

	return tokenResp.Token, nil
}
