package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/audit"
	"github.com/caldera-sec/logsift/internal/auth"
	"github.com/caldera-sec/logsift/internal/cache"
	"github.com/caldera-sec/logsift/internal/domain"
	"github.com/caldera-sec/logsift/internal/policy"
	alertinguc "github.com/caldera-sec/logsift/internal/usecase/alerting"
	chatuc "github.com/caldera-sec/logsift/internal/usecase/chat"
	healthuc "github.com/caldera-sec/logsift/internal/usecase/health"
	remediationuc "github.com/caldera-sec/logsift/internal/usecase/remediation"
	statsuc "github.com/caldera-sec/logsift/internal/usecase/stats"
	triageuc "github.com/caldera-sec/logsift/internal/usecase/triage"
)

// --- Stubs ---

const stubQuery = `{
	"query": {"bool": {"must": [
		{"term": {"event.action": "logon-failure"}},
		{"range": {"@timestamp": {"gte": "now-24h"}}}
	]}},
	"size": 10
}`

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, _ domain.Schema, _ string) (domain.GeneratedQuery, error) {
	return domain.GeneratedQuery{
		Query:    json.RawMessage(stubQuery),
		Analysis: "stub analysis",
		Severity: "low",
	}, nil
}

type stubKnowledge struct{}

func (stubKnowledge) Lookup(_ context.Context, _ string, _ int) string { return "" }

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, _ json.RawMessage, _ string, _ int) domain.ExecutionResult {
	return domain.ExecutionResult{Status: domain.StatusSuccess, TotalHits: 7}
}

func (stubExecutor) ExecuteAggregation(_ context.Context, _ json.RawMessage, _ string) (domain.AggregationResult, error) {
	return domain.AggregationResult{Aggregations: map[string]json.RawMessage{}}, nil
}

func (stubExecutor) ExecuteMulti(_ context.Context, raws []json.RawMessage, _ string, _ int) ([]domain.ExecutionResult, error) {
	out := make([]domain.ExecutionResult, len(raws))
	for i := range out {
		out[i] = domain.ExecutionResult{Status: domain.StatusSuccess, TotalHits: 1}
	}
	return out, nil
}

type stubSchemas struct{}

func (stubSchemas) Get(_ context.Context, index string) (domain.Schema, error) {
	return domain.Schema{
		Index: index,
		Types: map[string]domain.FieldType{
			"@timestamp":   domain.TypeDate,
			"event.action": domain.TypeKeyword,
			"message":      domain.TypeText,
		},
	}, nil
}

type stubLimiter struct{}

func (stubLimiter) Allow(string) bool { return true }

// --- Harness ---

type testEnv struct {
	router  *chi.Mux
	ledger  *audit.Ledger
	analyst string
	admin   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ledger, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	issuer := auth.NewTokenIssuer([]byte("test-secret"), time.Hour, cache.NewMemory())

	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := auth.NewUserStore(map[string]auth.User{
		"alice": {PasswordHash: hash, Role: auth.RoleAnalyst},
		"root":  {PasswordHash: hash, Role: auth.RoleAdmin},
	})

	policies := map[string]policy.Config{
		auth.RoleAnalyst: {MaxResultSize: 100, MaxLookbackDays: 7, AllowedIndexes: []string{"siem-logs"}},
		auth.RoleAdmin:   {MaxResultSize: 500, MaxLookbackDays: 30, AllowedIndexes: []string{"siem-logs"}},
	}

	exec := stubExecutor{}
	chatSvc := chatuc.New(
		stubGenerator{}, stubKnowledge{}, exec, stubSchemas{}, ledger, stubLimiter{},
		policies, "siem-logs", zap.NewNop(),
	)

	server := NewServer(
		chatSvc,
		statsuc.New(exec, zap.NewNop()),
		triageuc.New(exec, zap.NewNop()),
		alertinguc.New(ledger, zap.NewNop()),
		healthuc.New(ledger, nil),
		remediationuc.New("", zap.NewNop()),
		ledger,
		stubSchemas{},
		issuer,
		users,
		[]byte("export-key"),
		"siem-logs",
		zap.NewNop(),
	)

	r := chi.NewRouter()
	r.Use(SessionMiddleware(issuer))
	server.Routes(r)

	analystToken, err := issuer.Issue("alice", auth.RoleAnalyst)
	if err != nil {
		t.Fatalf("issue analyst token: %v", err)
	}
	adminToken, err := issuer.Issue("root", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}

	return &testEnv{router: r, ledger: ledger, analyst: analystToken, admin: adminToken}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- Tests ---

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/login", "", map[string]string{"username": "alice", "password": "hunter2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[map[string]string](t, rr)
	if resp["token"] == "" || resp["role"] != auth.RoleAnalyst {
		t.Errorf("login response = %v", resp)
	}
}

func TestLoginBadPassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password: got %d, want 401", rr.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/chat", "", map[string]string{"prompt": "failed logins"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated chat: got %d, want 401", rr.Code)
	}
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/chat", env.analyst, map[string]string{"prompt": "failed logins"})
	if rr.Code != http.StatusOK {
		t.Fatalf("chat: got %d, body %s", rr.Code, rr.Body.String())
	}

	answer := decode[chatuc.Answer](t, rr)
	if !answer.Validation.OK {
		t.Fatalf("expected accepted query, got %v", answer.Validation.Errors)
	}
	if answer.Result == nil || answer.Result.TotalHits != 7 {
		t.Errorf("result = %+v", answer.Result)
	}

	// The executed query must land in the audit ledger.
	records, err := env.ledger.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 1 || records[0].User != "alice" {
		t.Errorf("audit records = %+v", records)
	}
}

func TestBuilderFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/builder", env.analyst, map[string]any{
		"field":    "event.action",
		"operator": "term",
		"value":    "logon-failure",
		"size":     10,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("builder: got %d, body %s", rr.Code, rr.Body.String())
	}
	answer := decode[chatuc.Answer](t, rr)
	if !answer.Validation.OK {
		t.Errorf("builder query rejected: %v", answer.Validation.Errors)
	}
}

func TestBuilderBadOperator(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/builder", env.analyst, map[string]any{
		"field":    "event.action",
		"operator": "regexp",
		"value":    ".*",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad operator: got %d, want 400", rr.Code)
	}
}

func TestPreflightRejection(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/preflight", env.analyst, map[string]any{
		"query": json.RawMessage(`{"query": {"match": {"event.action": "x"}}}`),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("preflight: got %d, body %s", rr.Code, rr.Body.String())
	}
	verdict := decode[domain.ValidationResult](t, rr)
	if verdict.OK {
		t.Error("expected rejection for match on keyword without time range")
	}
}

func TestSchemaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/schema", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("schema: got %d", rr.Code)
	}
	resp := decode[map[string]any](t, rr)
	fields, ok := resp["fields"].(map[string]any)
	if !ok || fields["event.action"] != "keyword" {
		t.Errorf("schema response = %v", resp)
	}
}

func TestSavedSearchLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/saved", env.analyst, map[string]any{
		"name":  "failed logons",
		"query": json.RawMessage(stubQuery),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create saved: got %d, body %s", rr.Code, rr.Body.String())
	}
	saved := decode[domain.SavedSearch](t, rr)

	rr = env.do(t, "GET", "/api/saved", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list saved: got %d", rr.Code)
	}

	rr = env.do(t, "POST", "/api/saved/"+itoa(saved.ID)+"/run", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("run saved: got %d, body %s", rr.Code, rr.Body.String())
	}
	answer := decode[chatuc.Answer](t, rr)
	if answer.Result == nil {
		t.Error("expected result from saved search run")
	}

	rr = env.do(t, "DELETE", "/api/saved/"+itoa(saved.ID), env.analyst, nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete saved: got %d", rr.Code)
	}
}

func TestAlertLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/alerts", env.analyst, map[string]any{
		"name":      "brute force",
		"threshold": 5,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create alert: got %d, body %s", rr.Code, rr.Body.String())
	}
	alert := decode[domain.Alert](t, rr)

	rr = env.do(t, "POST", "/api/alerts/"+itoa(alert.ID)+"/evaluate", env.analyst, map[string]int{"hits": 10})
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate: got %d, body %s", rr.Code, rr.Body.String())
	}
	eval := decode[map[string]bool](t, rr)
	if !eval["triggered"] {
		t.Error("expected alert to trigger at 10 hits with threshold 5")
	}

	rr = env.do(t, "GET", "/api/alerts/recent", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("recent: got %d", rr.Code)
	}
	recent := decode[map[string][]domain.Alert](t, rr)
	if len(recent["alerts"]) != 1 {
		t.Errorf("recent alerts = %v", recent)
	}
}

func TestAuditExportAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/audit/export", env.analyst, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("analyst export: got %d, want 403", rr.Code)
	}

	rr = env.do(t, "GET", "/api/audit/export", env.admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin export: got %d, body %s", rr.Code, rr.Body.String())
	}
	export := decode[audit.Export](t, rr)
	if export.Signature == "" {
		t.Error("expected signed export")
	}
}

func TestAuditPruneAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/audit/prune", env.analyst, map[string]int{"max_days": 30})
	if rr.Code != http.StatusForbidden {
		t.Errorf("analyst prune: got %d, want 403", rr.Code)
	}

	rr = env.do(t, "POST", "/api/audit/prune", env.admin, map[string]int{"max_days": 30})
	if rr.Code != http.StatusOK {
		t.Errorf("admin prune: got %d", rr.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/stats", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: got %d, body %s", rr.Code, rr.Body.String())
	}
	dashboard := decode[statsuc.Dashboard](t, rr)
	if dashboard.TotalEvents != 7 {
		t.Errorf("TotalEvents = %d, want 7", dashboard.TotalEvents)
	}
}

func TestTriageEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/triage", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("triage: got %d", rr.Code)
	}

	rr = env.do(t, "GET", "/api/triage/coverage", env.analyst, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("coverage: got %d", rr.Code)
	}
	cov := decode[triageuc.Coverage](t, rr)
	if cov.Percent != 100 {
		t.Errorf("coverage = %d, want 100 (every stub rule hits)", cov.Percent)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("health: got %d", rr.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/logout", env.analyst, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d", rr.Code)
	}

	rr = env.do(t, "POST", "/api/chat", env.analyst, map[string]string{"prompt": "x"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked token reuse: got %d, want 401", rr.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRemediateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/remediate", "", map[string]string{"action": "isolate-host"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated remediate: got %d, want 401", rr.Code)
	}
}

func TestRemediateFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/remediate", env.analyst, map[string]string{"action": "isolate-host"})
	if rr.Code != http.StatusOK {
		t.Fatalf("remediate: got %d, body %s", rr.Code, rr.Body.String())
	}

	resp := decode[map[string]json.RawMessage](t, rr)
	if string(resp["status"]) != `"success"` {
		t.Errorf("status = %s", resp["status"])
	}

	var details remediationuc.Receipt
	if err := json.Unmarshal(resp["details"], &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Action != "isolate-host" || details.TriggeredBy != "alice" {
		t.Errorf("details = %+v", details)
	}
	if details.WebhookSent {
		t.Error("expected WebhookSent=false without a configured webhook")
	}
}

func TestRemediateMissingAction(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/remediate", env.analyst, map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing action: got %d, want 400", rr.Code)
	}
}
