package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrIndexNotAllowed signals an index outside the caller's allow-list.
	ErrIndexNotAllowed = errors.New("index not allowed")
	// ErrQueryRejected signals a query that failed policy validation.
	ErrQueryRejected = errors.New("query rejected by policy")
	// ErrBackendUnavailable signals a search backend failure.
	ErrBackendUnavailable = errors.New("search backend unavailable")
	// ErrRateLimited signals a per-user rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized signals missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenRevoked signals a session token invalidated by logout.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrGeneratorFailed signals that the query generator produced no usable query.
	ErrGeneratorFailed = errors.New("query generation failed")
)
