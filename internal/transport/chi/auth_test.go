package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caldera-sec/logsift/internal/auth"
	"github.com/caldera-sec/logsift/internal/cache"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer([]byte("test-secret"), time.Hour, cache.NewMemory())
}

func TestSessionMiddleware_ExemptPaths_PassThrough(t *testing.T) {
	mw := SessionMiddleware(testIssuer())
	handler := mw(okHandler())

	for _, path := range []string{"/health", "/metrics", "/api/login"} {
		req := httptest.NewRequest("GET", path, http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestSessionMiddleware_MissingHeader_401(t *testing.T) {
	mw := SessionMiddleware(testIssuer())
	handler := mw(okHandler())

	req := httptest.NewRequest("POST", "/api/chat", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_BadScheme_401(t *testing.T) {
	mw := SessionMiddleware(testIssuer())
	handler := mw(okHandler())

	req := httptest.NewRequest("POST", "/api/chat", http.NoBody)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad scheme: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_ValidToken_SessionInContext(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.Issue("alice", auth.RoleAnalyst)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var got auth.Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = sessionFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	mw := SessionMiddleware(issuer)
	req := httptest.NewRequest("POST", "/api/chat", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mw(inner).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, want %d", rr.Code, http.StatusOK)
	}
	if got.User != "alice" || got.Role != auth.RoleAnalyst {
		t.Errorf("session = %+v, want alice/analyst", got)
	}
}

func TestSessionMiddleware_RevokedToken_401(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.Issue("alice", auth.RoleAnalyst)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := issuer.Revoke(context.Background(), token); err != nil {
		t.Fatalf("revoke token: %v", err)
	}

	mw := SessionMiddleware(issuer)
	req := httptest.NewRequest("POST", "/api/chat", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_GarbageToken_401(t *testing.T) {
	mw := SessionMiddleware(testIssuer())

	req := httptest.NewRequest("POST", "/api/chat", http.NoBody)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
