package health

import "context"

// LedgerPinger checks audit ledger availability.
type LedgerPinger interface {
	Ping(ctx context.Context) error
}

// BackendPinger checks search backend availability.
type BackendPinger interface {
	Ping(ctx context.Context) error
}
