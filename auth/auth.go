// Package auth manages TradeStation OAuth2 access tokens obtained through
// the refresh-token grant.
package auth

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	tokenURL = "https://signin.tradestation.com/oauth/token"

	// defaultExpiresIn applies when the token endpoint omits expires_in.
	defaultExpiresIn = 1200

	// expirySlack refreshes slightly before the server-side expiry.
	expirySlack = 60 * time.Second

	maxConsecutiveFailures = 3
)

// AuthError signals that token refresh failed repeatedly and the pipeline
// cannot proceed without new credentials.
type AuthError struct {
	Failures int
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed after %d attempts: %v", e.Failures, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Credentials holds the TradeStation API application credentials
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenManager caches an access token and refreshes it on demand. Reads of
// a still-valid token take the read lock only; the refresh itself is
// serialized so concurrent expirations trigger a single request.
type TokenManager struct {
	creds      Credentials
	httpClient *resty.Client
	endpoint   string

	mu          sync.RWMutex
	accessToken string
	expiry      time.Time
	failures    int
}

// NewTokenManager creates a token manager for the given credentials
func NewTokenManager(creds Credentials) *TokenManager {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &TokenManager{
		creds:      creds,
		httpClient: client,
		endpoint:   tokenURL,
	}
}

// AccessToken returns a valid access token, refreshing when the cached one
// has expired.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, expiry := m.accessToken, m.expiry
	m.mu.RUnlock()

	if token != "" && time.Now().Before(expiry) {
		return token, nil
	}

	return m.refresh(ctx)
}

// Headers returns the authorization headers for API requests
func (m *TokenManager) Headers(ctx context.Context) (map[string]string, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// refresh performs the refresh-token grant under the write lock
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock
	if m.accessToken != "" && time.Now().Before(m.expiry) {
		return m.accessToken, nil
	}

	var body tokenResponse
	resp, err := m.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     m.creds.ClientID,
			"client_secret": m.creds.ClientSecret,
			"refresh_token": m.creds.RefreshToken,
		}).
		SetResult(&body).
		Post(m.endpoint)

	if err == nil && resp.IsError() {
		err = fmt.Errorf("token endpoint returned %s: %s", resp.Status(), resp.String())
	}
	if err == nil && body.AccessToken == "" {
		err = fmt.Errorf("token endpoint returned no access_token")
	}

	if err != nil {
		m.failures++
		log.Printf("⚠️  Token refresh failed (%d/%d): %v", m.failures, maxConsecutiveFailures, err)
		if m.failures >= maxConsecutiveFailures {
			return "", &AuthError{Failures: m.failures, Err: err}
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	m.accessToken = body.AccessToken
	m.expiry = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
	m.failures = 0

	// Some grants rotate the refresh token
	if body.RefreshToken != "" {
		m.creds.RefreshToken = body.RefreshToken
	}

	log.Printf("✅ Access token refreshed (expires in %ds)", expiresIn)
	return m.accessToken, nil
}

// SetTokenURL overrides the token endpoint, used by tests.
func (m *TokenManager) SetTokenURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoint = url
}
