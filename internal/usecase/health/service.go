package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	ledger  LedgerPinger
	backend BackendPinger
}

// New creates a Service. backend can be nil when running in demo mode
// without a live search backend.
func New(ledger LedgerPinger, backend BackendPinger) *Service {
	return &Service{ledger: ledger, backend: backend}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.ledger.Ping(ctx); err != nil {
		checks["ledger"] = CheckError
	} else {
		checks["ledger"] = CheckOK
	}

	if s.backend != nil {
		if err := s.backend.Ping(ctx); err != nil {
			checks["search"] = CheckError
		} else {
			checks["search"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
