package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(url string) *TokenManager {
	m := NewTokenManager(Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
	})
	m.SetTokenURL(url)
	return m
}

func TestAccessTokenRefreshAndCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if err := r.ParseForm(); err != nil {
			t.Fatalf("bad form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" ||
			r.Form.Get("client_id") != "client" ||
			r.Form.Get("client_secret") != "secret" ||
			r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected form %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-1","expires_in":1200,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "token-1" {
		t.Errorf("token = %q, want token-1", token)
	}

	// Second call must come from cache
	if _, err := m.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-xyz","expires_in":1200}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	headers, err := m.Headers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers["Authorization"] != "Bearer token-xyz" {
		t.Errorf("authorization header = %q", headers["Authorization"])
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.Write([]byte(`{"access_token":"token-1","refresh_token":"refresh-2","expires_in":1200}`))
			return
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-2" {
			t.Errorf("second refresh used token %q, want rotated refresh-2", got)
		}
		w.Write([]byte(`{"access_token":"token-2","expires_in":1200}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	if _, err := m.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Expire the cached token to force a second grant
	m.mu.Lock()
	m.expiry = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "token-2" {
		t.Errorf("token = %q, want token-2", token)
	}
}

func TestDefaultExpiresIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-1"}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)
	if _, err := m.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	wantMin := time.Now().Add(defaultExpiresIn*time.Second - expirySlack - 5*time.Second)
	if m.expiry.Before(wantMin) {
		t.Errorf("expiry %v too early, default expires_in not applied", m.expiry)
	}
}

func TestRepeatedFailuresEscalate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	for i := 1; i <= maxConsecutiveFailures; i++ {
		_, err := m.AccessToken(context.Background())
		if err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}

		var authErr *AuthError
		escalated := errors.As(err, &authErr)
		if i < maxConsecutiveFailures && escalated {
			t.Errorf("attempt %d escalated early: %v", i, err)
		}
		if i == maxConsecutiveFailures {
			if !escalated {
				t.Fatalf("attempt %d: error %v is not an AuthError", i, err)
			}
			if authErr.Failures != maxConsecutiveFailures {
				t.Errorf("failures = %d, want %d", authErr.Failures, maxConsecutiveFailures)
			}
		}
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-1","expires_in":1200}`))
	}))
	defer server.Close()

	m := newTestManager(server.URL)

	if _, err := m.AccessToken(context.Background()); err == nil {
		t.Fatal("expected transient failure")
	}

	fail.Store(false)
	if _, err := m.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failures != 0 {
		t.Errorf("failure counter = %d, want 0 after success", m.failures)
	}
}
