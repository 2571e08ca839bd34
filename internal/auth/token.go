package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/caldera-sec/logsift/internal/cache"
	"github.com/caldera-sec/logsift/internal/domain"
)

// Session identifies an authenticated caller.
type Session struct {
	User    string
	Role    string
	TokenID string
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies HS256 session tokens. Revocation goes
// through the shared revoked set, keyed by token ID, so logout works across
// replicas when the Redis cache driver is configured.
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	revoked cache.Cache
	now     func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret []byte, ttl time.Duration, revoked cache.Cache) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue creates a signed token for user with the given role.
func (t *TokenIssuer) Issue(user, role string) (string, error) {
	now := t.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token's signature, expiry, and revocation state.
func (t *TokenIssuer) Verify(ctx context.Context, token string) (Session, error) {
	c, err := t.parse(token, true)
	if err != nil {
		return Session{}, err
	}
	revoked, err := t.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		// Fail closed: an unreadable revoked set must not admit tokens.
		return Session{}, fmt.Errorf("%w: revoked set unavailable", domain.ErrUnauthorized)
	}
	if revoked {
		return Session{}, domain.ErrTokenRevoked
	}
	return Session{User: c.Subject, Role: c.Role, TokenID: c.ID}, nil
}

// Revoke invalidates a token by adding its ID to the revoked set. The
// signature must verify but an already-expired token may still be revoked.
func (t *TokenIssuer) Revoke(ctx context.Context, token string) error {
	c, err := t.parse(token, false)
	if err != nil {
		return err
	}
	if err := t.revoked.AddRevoked(ctx, c.ID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Refresh exchanges a signed (possibly expired, but not revoked) token for a
// fresh one with the same identity.
func (t *TokenIssuer) Refresh(ctx context.Context, token string) (string, error) {
	c, err := t.parse(token, false)
	if err != nil {
		return "", err
	}
	revoked, err := t.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		return "", fmt.Errorf("%w: revoked set unavailable", domain.ErrUnauthorized)
	}
	if revoked {
		return "", domain.ErrTokenRevoked
	}
	return t.Issue(c.Subject, c.Role)
}

func (t *TokenIssuer) parse(token string, requireExpiry bool) (*claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if requireExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("%w: incomplete token claims", domain.ErrUnauthorized)
	}
	return &c, nil
}
