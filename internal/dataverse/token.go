package dataverse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// tokenExpiryBuffer is subtracted from the token lifetime so a cached
	// token is never used within 5 minutes of real expiry.
	tokenExpiryBuffer = 5 * time.Minute

	// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
	defaultTokenLifetime = time.Hour

	// defaultLoginBase is the Microsoft identity platform endpoint.
	defaultLoginBase = "https://login.microsoftonline.com"
)

// TokenManager acquires and caches OAuth2 client-credentials tokens for a
// single Dataverse environment. Exactly one token is cached at a time; the
// cache is cleared whenever the connection is reconfigured.
type TokenManager struct {
	mu         sync.RWMutex
	httpClient *http.Client
	loginBase  string
	now        func() time.Time

	// Cached token (single tenant, single entry)
	accessToken string
	expiresAt   time.Time
}

// NewTokenManager creates a token manager with the default identity endpoint.
func NewTokenManager() *TokenManager {
	return &TokenManager{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loginBase:  defaultLoginBase,
		now:        time.Now,
	}
}

// Token returns a valid access token for the given connection, refreshing
// via the client-credentials grant when the cached token is missing or
// expired. This method is thread-safe and serializes refreshes so concurrent
// callers trigger at most one token request.
func (tm *TokenManager) Token(ctx context.Context, cfg Config) (string, error) {
	// Fast path: cached token still valid (read lock only, zero I/O)
	tm.mu.RLock()
	token := tm.accessToken
	expiry := tm.expiresAt
	tm.mu.RUnlock()

	if token != "" && tm.now().Before(expiry) {
		return token, nil
	}

	return tm.refresh(ctx, cfg)
}

// Invalidate clears the cached token. The next call to Token will perform a
// fresh client-credentials grant.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.accessToken = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()

	log.Debug().Msg("invalidated cached access token")
}

// refresh performs the OAuth2 client-credentials grant and stores the result.
// Holds the write lock across the request to prevent duplicate refreshes.
func (tm *TokenManager) refresh(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Double-check: another goroutine may have refreshed while we waited
	if tm.accessToken != "" && tm.now().Before(tm.expiresAt) {
		return tm.accessToken, nil
	}

	tokenURL := tm.loginBase + "/" + cfg.TenantID + "/oauth2/v2.0/token"

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("scope", cfg.ServiceURL+"/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", AuthenticationError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	log.Debug().Str("tokenUrl", tokenURL).Msg("requesting new access token")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("token request failed")
		return "", AuthenticationError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", AuthenticationError{Reason: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Msg("token endpoint rejected request")
		return "", AuthenticationError{
			Reason: TransportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}.Error(),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", AuthenticationError{Reason: err.Error()}
	}
	if tr.AccessToken == "" {
		return "", AuthenticationError{Reason: "token response missing access_token"}
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}

	// Cache with the 5-minute safety buffer
	tm.accessToken = tr.AccessToken
	tm.expiresAt = tm.now().Add(lifetime - tokenExpiryBuffer)

	log.Info().Time("expiresAt", tm.expiresAt).Msg("obtained new access token")

	return tm.accessToken, nil
}
