package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the logsift API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Search      SearchConfig      `yaml:"search"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Policy      PolicyConfig      `yaml:"policy"`
	Audit       AuditConfig       `yaml:"audit"`
	Cache       CacheConfig       `yaml:"cache"`
	Auth        AuthConfig        `yaml:"auth"`
	LLM         LLMConfig         `yaml:"llm"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Remediation RemediationConfig `yaml:"remediation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RemediationConfig holds the SOAR webhook settings for remediation triggers.
type RemediationConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty disables webhook delivery
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds search backend connection settings.
type SearchConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TimeoutSec         int    `yaml:"timeout_sec"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	DefaultIndex       string `yaml:"default_index"`
	MappingTTLSec      int    `yaml:"mapping_ttl_sec"`
	DemoMode           bool   `yaml:"demo_mode"`
}

// GatewayConfig holds execution gateway settings.
type GatewayConfig struct {
	AllowedIndexes []string `yaml:"allowed_indexes"`
	AggCacheTTLSec int      `yaml:"agg_cache_ttl_sec"`
}

// PolicyConfig holds query policy settings.
type PolicyConfig struct {
	TimestampField string                `yaml:"timestamp_field"`
	Roles          map[string]RolePolicy `yaml:"roles"`
}

// RolePolicy holds the per-role query limits.
type RolePolicy struct {
	MaxResultSize   int      `yaml:"max_result_size"`
	MaxLookbackDays float64  `yaml:"max_lookback_days"`
	AllowedIndexes  []string `yaml:"allowed_indexes"`
}

// AuditConfig holds audit ledger settings.
type AuditConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	ExportHMACKey string `yaml:"export_hmac_key"`
}

// CacheConfig holds cache connection settings.
type CacheConfig struct {
	Driver   string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret   string                `yaml:"jwt_secret"`
	TokenTTLMin int                   `yaml:"token_ttl_min"`
	Users       map[string]UserConfig `yaml:"users"`
}

// UserConfig holds one local user account.
type UserConfig struct {
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Role         string `yaml:"role"`          // analyst, admin
}

// LLMConfig holds query generator provider settings.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// RateLimitConfig holds per-user request throttling settings.
type RateLimitConfig struct {
	MaxPerMinute int `yaml:"max_per_minute"` // 0 = disabled
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 30
	}
	if c.Search.DefaultIndex == "" {
		c.Search.DefaultIndex = "siem-logs-*"
	}
	if c.Search.MappingTTLSec <= 0 {
		c.Search.MappingTTLSec = 300
	}
	if c.Gateway.AggCacheTTLSec <= 0 {
		c.Gateway.AggCacheTTLSec = 30
	}
	if len(c.Gateway.AllowedIndexes) == 0 {
		c.Gateway.AllowedIndexes = []string{c.Search.DefaultIndex}
	}
	if c.Policy.TimestampField == "" {
		c.Policy.TimestampField = "@timestamp"
	}
	for name, role := range c.Policy.Roles {
		if role.MaxResultSize <= 0 {
			role.MaxResultSize = 100
		}
		if role.MaxLookbackDays <= 0 {
			role.MaxLookbackDays = 7
		}
		if len(role.AllowedIndexes) == 0 {
			role.AllowedIndexes = c.Gateway.AllowedIndexes
		}
		c.Policy.Roles[name] = role
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "audit.db"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 90
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Auth.TokenTTLMin <= 0 {
		c.Auth.TokenTTLMin = 60
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.URL == "" && !c.Search.DemoMode {
		return fmt.Errorf("search.url is required unless search.demo_mode is set")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Policy.Roles) == 0 {
		return fmt.Errorf("policy.roles is required")
	}
	for name, role := range c.Policy.Roles {
		switch name {
		case "analyst", "admin":
			// ok
		default:
			return fmt.Errorf("policy.roles key must be \"analyst\" or \"admin\", got %q", name)
		}
		if role.MaxResultSize > 1000 {
			return fmt.Errorf("policy.roles.%s.max_result_size must not exceed 1000, got %d", name, role.MaxResultSize)
		}
	}
	for name, u := range c.Auth.Users {
		if u.PasswordHash == "" {
			return fmt.Errorf("auth.users.%s.password_hash is required", name)
		}
		if _, ok := c.Policy.Roles[u.Role]; !ok {
			return fmt.Errorf("auth.users.%s.role %q has no policy", name, u.Role)
		}
	}
	if c.Cache.Driver == "redis" && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required for the redis driver")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
