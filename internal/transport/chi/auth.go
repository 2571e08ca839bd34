package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/caldera-sec/logsift/internal/auth"
)

type sessionKey struct{}

// exemptPaths are routes that bypass authentication (health, metrics, login).
var exemptPaths = map[string]struct{}{
	"/health":    {},
	"/metrics":   {},
	"/api/login": {},
}

// SessionMiddleware returns a middleware that validates Bearer tokens and
// places the verified session in the request context.
func SessionMiddleware(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			session, err := tokens.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or revoked token")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}

func sessionFrom(r *http.Request) auth.Session {
	s, _ := r.Context().Value(sessionKey{}).(auth.Session)
	return s
}

// requireAdmin writes a 403 and returns false unless the session has the
// admin role.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if sessionFrom(r).Role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, codeForbidden, "admin role required")
		return false
	}
	return true
}

// Login handles POST /api/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	role, err := s.users.Verify(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(req.Username, role)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"user":  req.Username,
		"role":  role,
	})
}

// Refresh handles POST /api/refresh.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
		return
	}

	fresh, err := s.tokens.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or revoked token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": fresh})
}

// Logout handles POST /api/logout. Revokes the presented token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
		return
	}

	if err := s.tokens.Revoke(r.Context(), token); err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
