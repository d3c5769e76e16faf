package dataverse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig(serviceURL string) Config {
	return Config{
		ServiceURL:   serviceURL,
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		TenantID:     "tenant-789",
	}
}

func TestTokenManager_FetchesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenant-789/oauth2/v2.0/token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("unexpected method: %s", r.Method)
		}

		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("unexpected grant_type: %s", got)
		}
		if got := r.PostFormValue("client_id"); got != "client-123" {
			t.Errorf("unexpected client_id: %s", got)
		}
		if got := r.PostFormValue("client_secret"); got != "secret-456" {
			t.Errorf("unexpected client_secret: %s", got)
		}
		if got := r.PostFormValue("scope"); got != "https://org.example.com/.default" {
			t.Errorf("unexpected scope: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"token-abc","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer server.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tm := NewTokenManager()
	tm.loginBase = server.URL
	tm.now = func() time.Time { return now }

	token, err := tm.Token(context.Background(), testConfig("https://org.example.com"))
	if err != nil {
		t.Fatalf("failed to obtain token: %v", err)
	}
	if token != "token-abc" {
		t.Errorf("unexpected token: %s", token)
	}

	// Expiry must sit exactly 300 seconds before the real expiry
	want := now.Add(3600*time.Second - 300*time.Second)
	if !tm.expiresAt.Equal(want) {
		t.Errorf("unexpected expiry: got %v, want %v", tm.expiresAt, want)
	}
}

func TestTokenManager_CachesToken(t *testing.T) {
	callCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		fmt.Fprint(w, `{"access_token":"token-abc","expires_in":3600}`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	ctx := context.Background()
	cfg := testConfig("https://org.example.com")

	// First call fetches, second call must reuse the cache with zero I/O
	if _, err := tm.Token(ctx, cfg); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := tm.Token(ctx, cfg); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 token request, got %d", callCount)
	}
}

func TestTokenManager_RefreshesExpiredToken(t *testing.T) {
	callCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		fmt.Fprint(w, `{"access_token":"fresh-token","expires_in":3600}`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	// Seed an expired cache entry
	tm.accessToken = "stale-token"
	tm.expiresAt = time.Now().Add(-time.Minute)

	token, err := tm.Token(context.Background(), testConfig("https://org.example.com"))
	if err != nil {
		t.Fatalf("failed to refresh token: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("expected fresh token, got %s", token)
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 token request, got %d", callCount)
	}
}

func TestTokenManager_DefaultExpiryWhenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No expires_in in the response
		fmt.Fprint(w, `{"access_token":"token-abc"}`)
	}))
	defer server.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tm := NewTokenManager()
	tm.loginBase = server.URL
	tm.now = func() time.Time { return now }

	if _, err := tm.Token(context.Background(), testConfig("https://org.example.com")); err != nil {
		t.Fatalf("failed to obtain token: %v", err)
	}

	want := now.Add(3600*time.Second - 300*time.Second)
	if !tm.expiresAt.Equal(want) {
		t.Errorf("unexpected expiry: got %v, want %v", tm.expiresAt, want)
	}
}

func TestTokenManager_MissingConfigFields(t *testing.T) {
	callCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
	}))
	defer server.Close()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing service URL", Config{ClientID: "a", ClientSecret: "b", TenantID: "c"}},
		{"missing client ID", Config{ServiceURL: "https://org.example.com", ClientSecret: "b", TenantID: "c"}},
		{"missing client secret", Config{ServiceURL: "https://org.example.com", ClientID: "a", TenantID: "c"}},
		{"missing tenant ID", Config{ServiceURL: "https://org.example.com", ClientID: "a", ClientSecret: "b"}},
		{"empty config", Config{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tm := NewTokenManager()
			tm.loginBase = server.URL

			_, err := tm.Token(context.Background(), tc.cfg)
			var cerr ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}

	if callCount != 0 {
		t.Errorf("expected no HTTP calls for incomplete configuration, got %d", callCount)
	}
}

func TestTokenManager_EndpointRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	_, err := tm.Token(context.Background(), testConfig("https://org.example.com"))
	var aerr AuthenticationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}

	// Underlying status and body must be preserved in the failure reason
	if msg := err.Error(); !containsAll(msg, "401", "invalid_client") {
		t.Errorf("error message missing transport details: %s", msg)
	}

	// Cache must be untouched on failure (no partial writes)
	if tm.accessToken != "" || !tm.expiresAt.IsZero() {
		t.Errorf("token cache mutated on failure: %q / %v", tm.accessToken, tm.expiresAt)
	}
}

func TestTokenManager_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // simulate connection refusal

	tm := NewTokenManager()
	tm.loginBase = server.URL

	_, err := tm.Token(context.Background(), testConfig("https://org.example.com"))
	var aerr AuthenticationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if tm.accessToken != "" {
		t.Errorf("token cache mutated on network failure: %q", tm.accessToken)
	}
}

func TestTokenManager_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	_, err := tm.Token(context.Background(), testConfig("https://org.example.com"))
	var aerr AuthenticationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestTokenManager_Invalidate(t *testing.T) {
	callCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		fmt.Fprint(w, `{"access_token":"token-abc","expires_in":3600}`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	ctx := context.Background()
	cfg := testConfig("https://org.example.com")

	if _, err := tm.Token(ctx, cfg); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	tm.Invalidate()

	if _, err := tm.Token(ctx, cfg); err != nil {
		t.Fatalf("call after invalidation failed: %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 token requests after invalidation, got %d", callCount)
	}
}

func TestTokenManager_ConcurrentRefresh(t *testing.T) {
	callCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		// Simulate slow response
		time.Sleep(10 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"token-abc","expires_in":3600}`)
	}))
	defer server.Close()

	tm := NewTokenManager()
	tm.loginBase = server.URL

	ctx := context.Background()
	cfg := testConfig("https://org.example.com")

	const numGoroutines = 10
	tokenChan := make(chan string, numGoroutines)
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			token, err := tm.Token(ctx, cfg)
			if err != nil {
				errChan <- err
				return
			}
			tokenChan <- token
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case token := <-tokenChan:
			if token != "token-abc" {
				t.Errorf("goroutine got unexpected token: %s", token)
			}
		case err := <-errChan:
			t.Fatalf("goroutine failed: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for goroutines")
		}
	}

	// Refreshes are serialized; concurrent callers share one request
	if callCount != 1 {
		t.Errorf("expected 1 token request across concurrent callers, got %d", callCount)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
