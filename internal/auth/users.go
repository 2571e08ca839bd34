// Package auth covers the thin session layer around the core: a bcrypt user
// store and HS256 session tokens with logout revocation. Roles only matter
// downstream, where they select the policy limits and index allow-lists.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Roles recognized by the policy layer.
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// User is one configured account.
type User struct {
	PasswordHash string
	Role         string
}

// UserStore verifies credentials against configured accounts.
type UserStore struct {
	users map[string]User
}

// NewUserStore creates a user store from configured accounts.
func NewUserStore(users map[string]User) *UserStore {
	if users == nil {
		users = map[string]User{}
	}
	return &UserStore{users: users}
}

// Verify checks a username/password pair and returns the account role.
// Every failure mode maps to ErrUnauthorized; callers must not learn whether
// the user exists.
func (s *UserStore) Verify(username, password string) (string, error) {
	u, ok := s.users[username]
	if !ok || u.PasswordHash == "" {
		return "", domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", domain.ErrUnauthorized
	}
	role := u.Role
	if role == "" {
		role = RoleAnalyst
	}
	return role, nil
}

// HashPassword produces a bcrypt hash for provisioning accounts.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
