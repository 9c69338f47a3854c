package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// authServer is a minimal fake of the auth API: one login pair, opaque tokens
// rotated on refresh, and a protected /data endpoint that rejects anything but
// the current access token.
type authServer struct {
	mu       sync.Mutex
	access   string
	refresh  string
	gen      int
	refreshN int32
	dead     bool
}

func newAuthServer() *authServer {
	return &authServer{}
}

func (a *authServer) rotate() (string, string) {
	a.gen++
	a.access = fmt.Sprintf("access-%d", a.gen)
	a.refresh = fmt.Sprintf("refresh-%d", a.gen)
	return a.access, a.refresh
}

func (a *authServer) expireAccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.access = ""
}

func (a *authServer) kill() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dead = true
}

func (a *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email  string `json:"email"`
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Secret != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_credential"})
			return
		}
		a.mu.Lock()
		access, refresh := a.rotate()
		a.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": "s-1", "accessToken": access, "refreshToken": refresh, "expiresIn": 900,
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&a.refreshN, 1)
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.dead || req.RefreshToken != a.refresh {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "token_replayed"})
			return
		}
		access, refresh := a.rotate()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": "s-1", "accessToken": access, "refreshToken": refresh, "expiresIn": 900,
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.mu.Lock()
		ok := a.access != "" && token == a.access
		a.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
			return
		}
		w.Write([]byte("payload"))
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.mu.Lock()
		ok := a.access != "" && token == a.access
		a.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
			return
		}
		io.Copy(w, r.Body)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *authServer) {
	t.Helper()
	auth := newAuthServer()
	ts := httptest.NewServer(auth.handler())
	t.Cleanup(ts.Close)

	c := New(ts.URL, ts.Client())
	if err := c.Login(context.Background(), "user@example.com", "correct-horse", Device{Platform: "test"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	return c, auth
}

func TestDo_SendsBearer(t *testing.T) {
	c, _ := newTestClient(t)

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/data", nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Fatalf("got body %q, want payload", body)
	}
}

func TestDo_RefreshesOnceOnExpiredToken(t *testing.T) {
	c, auth := newTestClient(t)
	auth.expireAccess()

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/data", nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&auth.refreshN); n != 1 {
		t.Fatalf("expected one refresh call, got %d", n)
	}
}

func TestDo_ConcurrentExpiryRotatesOnce(t *testing.T) {
	c, auth := newTestClient(t)
	auth.expireAccess()

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/data", nil)
			resp, err := c.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs[i] = fmt.Errorf("status %d", resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&auth.refreshN); n != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", n)
	}
}

func TestDo_RetriesRequestBody(t *testing.T) {
	c, auth := newTestClient(t)
	auth.expireAccess()

	req, _ := http.NewRequest(http.MethodPost, c.baseURL+"/echo", strings.NewReader("hello"))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Fatalf("got echo %q, want hello", body)
	}
}

func TestDo_RevokedSessionRequiresLogin(t *testing.T) {
	c, auth := newTestClient(t)
	auth.expireAccess()
	auth.kill()

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/data", nil)
	if _, err := c.Do(req); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
	if c.Coordinator().State() != StateLoggedOut {
		t.Fatalf("expected logged-out state, got %v", c.Coordinator().State())
	}

	// Latched; no further network attempts are made.
	if _, err := c.Do(req); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestDo_WithoutLogin(t *testing.T) {
	ts := httptest.NewServer(newAuthServer().handler())
	defer ts.Close()

	c := New(ts.URL, ts.Client())
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/data", nil)
	if _, err := c.Do(req); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestLogout_ClearsCredentials(t *testing.T) {
	c, _ := newTestClient(t)
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.Coordinator().State() != StateLoggedOut {
		t.Fatalf("expected logged-out state, got %v", c.Coordinator().State())
	}
	// Logging out twice is harmless.
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	auth := newAuthServer()
	ts := httptest.NewServer(auth.handler())
	defer ts.Close()

	c := New(ts.URL, ts.Client())
	err := c.Login(context.Background(), "user@example.com", "wrong", Device{})
	if err == nil {
		t.Fatal("expected error for bad credentials")
	}
	if !strings.Contains(err.Error(), "invalid_credential") {
		t.Fatalf("expected invalid_credential in error, got %v", err)
	}
}
