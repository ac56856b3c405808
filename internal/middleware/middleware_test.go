package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tx/abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthSkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, []string{"/healthz", "/like"})

	for _, path := range []string{"/healthz", "/like", "/like/info"} {
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("skip path %s got status %d", path, rec.Code)
		}
	}

	// A skip prefix does not leak onto sibling paths.
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/likeness", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sibling path got status %d, want 401", rec.Code)
	}
}

func TestAuthAcceptsIssuedToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "likecoin-api", time.Hour)
	token, err := issuer.Issue("alice-liker", "0xabc")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m := NewAuthMiddleware(testSecret, nil, nil)
	var gotUser, gotWallet string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotWallet = GetWallet(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/self", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "alice-liker" || gotWallet != "0xabc" {
		t.Fatalf("context identity = (%q, %q)", gotUser, gotWallet)
	}

	// The same token is accepted from the session cookie.
	req = httptest.NewRequest(http.MethodGet, "/users/self", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth status = %d, want 200", rec.Code)
	}
}

func TestAuthRejectsExpiredAndForgedTokens(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	expiredIssuer := NewTokenIssuer(testSecret, "likecoin-api", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Issue("alice-liker", "")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	forgedIssuer := NewTokenIssuer([]byte("other-secret"), "likecoin-api", time.Hour)
	forged, err := forgedIssuer.Issue("alice-liker", "")
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}

	for name, token := range map[string]string{"expired": expired, "forged": forged, "garbage": "not.a.jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/users/self", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s token got status %d, want 401", name, rec.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tx/abc", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request got %d, want 429", codes[2])
	}

	// A different caller has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/tx/abc", nil)
	req.RemoteAddr = "203.0.113.8:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second caller got %d, want 200", rec.Code)
	}
}

func TestRateLimiterKeysAuthenticatedCallersByUserID(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "likecoin-api", time.Hour)
	token, err := issuer.Issue("alice-liker", "0xabc")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Chain in server order, auth outside the limiter, so the limiter sees
	// the attached identity.
	rl := NewRateLimiter(1, 1, nil)
	auth := NewAuthMiddleware(testSecret, nil, []string{"/like"})
	handler := auth.Handler(rl.Handler(okHandler()))

	// Anonymous traffic exhausts the IP bucket.
	req := httptest.NewRequest(http.MethodGet, "/like/info", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first anonymous request got %d, want 200", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/like/info", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second anonymous request got %d, want 429", rec.Code)
	}

	// An authenticated caller on the same IP has its own bucket.
	req = httptest.NewRequest(http.MethodGet, "/users/self", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request got %d, want 200", rec.Code)
	}

	if _, ok := rl.limiters["alice-liker"]; !ok {
		t.Fatal("no bucket keyed by user ID")
	}
}

func TestCORS(t *testing.T) {
	m := NewCORSMiddleware([]string{"like.co"})
	handler := m.Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/like/info", nil)
	req.Header.Set("Origin", "https://app.like.co")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.like.co" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/like/info", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got allow-origin %q", got)
	}

	// Preflight short-circuits.
	req = httptest.NewRequest(http.MethodOptions, "/like/info", nil)
	req.Header.Set("Origin", "https://app.like.co")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
}
