package config

import "testing"

func validConfig() Config {
	return Config{
		HTTP:   HTTPConfig{Port: 8080},
		Search: SearchConfig{URL: "https://localhost:9200"},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Policy: PolicyConfig{
			Roles: map[string]RolePolicy{
				"analyst": {MaxResultSize: 100, MaxLookbackDays: 7},
			},
		},
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingSearchURL(t *testing.T) {
	cfg := validConfig()
	cfg.Search.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing search url")
	}
}

func TestValidate_DemoModeWithoutURL(t *testing.T) {
	cfg := validConfig()
	cfg.Search.URL = ""
	cfg.Search.DemoMode = true

	if err := cfg.Validate(); err != nil {
		t.Fatalf("demo mode must not require search url: %v", err)
	}
}

func TestValidate_UnknownRole(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.Roles["superuser"] = RolePolicy{MaxResultSize: 10, MaxLookbackDays: 1}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown role name")
	}

	expected := `policy.roles key must be "analyst" or "admin", got "superuser"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ResultSizeOverCeiling(t *testing.T) {
	cfg := validConfig()
	cfg.Policy.Roles["analyst"] = RolePolicy{MaxResultSize: 2000, MaxLookbackDays: 7}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for max_result_size above ceiling")
	}
}

func TestValidate_UserWithoutPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Users = map[string]UserConfig{
		"alice": {PasswordHash: "$2a$10$x", Role: "admin"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for user role without a policy")
	}
}

func TestValidate_RedisWithoutAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Driver = "redis"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for redis cache without addrs")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		Policy: PolicyConfig{Roles: map[string]RolePolicy{"analyst": {}}},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Search.DefaultIndex != "siem-logs-*" {
		t.Errorf("expected DefaultIndex='siem-logs-*', got %q", cfg.Search.DefaultIndex)
	}
	if cfg.Search.MappingTTLSec != 300 {
		t.Errorf("expected MappingTTLSec=300, got %d", cfg.Search.MappingTTLSec)
	}
	if cfg.Gateway.AggCacheTTLSec != 30 {
		t.Errorf("expected AggCacheTTLSec=30, got %d", cfg.Gateway.AggCacheTTLSec)
	}
	if len(cfg.Gateway.AllowedIndexes) != 1 || cfg.Gateway.AllowedIndexes[0] != "siem-logs-*" {
		t.Errorf("expected AllowedIndexes=[siem-logs-*], got %v", cfg.Gateway.AllowedIndexes)
	}
	if cfg.Policy.TimestampField != "@timestamp" {
		t.Errorf("expected TimestampField='@timestamp', got %q", cfg.Policy.TimestampField)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("expected Driver='memory', got %q", cfg.Cache.Driver)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("expected RetentionDays=90, got %d", cfg.Audit.RetentionDays)
	}
	if cfg.Auth.TokenTTLMin != 60 {
		t.Errorf("expected TokenTTLMin=60, got %d", cfg.Auth.TokenTTLMin)
	}

	role := cfg.Policy.Roles["analyst"]
	if role.MaxResultSize != 100 {
		t.Errorf("expected role MaxResultSize=100, got %d", role.MaxResultSize)
	}
	if role.MaxLookbackDays != 7 {
		t.Errorf("expected role MaxLookbackDays=7, got %g", role.MaxLookbackDays)
	}
	if len(role.AllowedIndexes) != 1 || role.AllowedIndexes[0] != "siem-logs-*" {
		t.Errorf("expected role AllowedIndexes inherited, got %v", role.AllowedIndexes)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Search: SearchConfig{DefaultIndex: "wazuh-alerts-*", TimeoutSec: 5},
		Policy: PolicyConfig{
			TimestampField: "event.ingested",
			Roles: map[string]RolePolicy{
				"admin": {MaxResultSize: 500, MaxLookbackDays: 30, AllowedIndexes: []string{"a", "b"}},
			},
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Search.DefaultIndex != "wazuh-alerts-*" {
		t.Errorf("expected DefaultIndex='wazuh-alerts-*', got %q", cfg.Search.DefaultIndex)
	}
	if cfg.Policy.TimestampField != "event.ingested" {
		t.Errorf("expected TimestampField='event.ingested', got %q", cfg.Policy.TimestampField)
	}
	role := cfg.Policy.Roles["admin"]
	if role.MaxResultSize != 500 || role.MaxLookbackDays != 30 {
		t.Errorf("expected admin limits preserved, got %+v", role)
	}
	if len(role.AllowedIndexes) != 2 {
		t.Errorf("expected admin AllowedIndexes preserved, got %v", role.AllowedIndexes)
	}
}
