package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/audit"
	"github.com/caldera-sec/logsift/internal/auth"
	"github.com/caldera-sec/logsift/internal/cache"
	"github.com/caldera-sec/logsift/internal/config"
	"github.com/caldera-sec/logsift/internal/domain"
	"github.com/caldera-sec/logsift/internal/elastic"
	"github.com/caldera-sec/logsift/internal/gateway"
	"github.com/caldera-sec/logsift/internal/knowledge"
	logpkg "github.com/caldera-sec/logsift/internal/logger"
	"github.com/caldera-sec/logsift/internal/metrics"
	"github.com/caldera-sec/logsift/internal/policy"
	"github.com/caldera-sec/logsift/internal/ratelimit"
	"github.com/caldera-sec/logsift/internal/schema"
	chiTransport "github.com/caldera-sec/logsift/internal/transport/chi"
	"github.com/caldera-sec/logsift/internal/transport/llm"
	alertinguc "github.com/caldera-sec/logsift/internal/usecase/alerting"
	chatuc "github.com/caldera-sec/logsift/internal/usecase/chat"
	healthuc "github.com/caldera-sec/logsift/internal/usecase/health"
	remediationuc "github.com/caldera-sec/logsift/internal/usecase/remediation"
	statsuc "github.com/caldera-sec/logsift/internal/usecase/stats"
	triageuc "github.com/caldera-sec/logsift/internal/usecase/triage"
	"github.com/caldera-sec/logsift/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting logsift API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("search_url", cfg.Search.URL),
		zap.Bool("demo_mode", cfg.Search.DemoMode),
	)

	// Register Prometheus collectors explicitly (no init())
	metrics.Register()

	// Create cache based on driver
	var store cache.Cache
	switch cfg.Cache.Driver {
	case "memory":
		store = cache.NewMemory()
	case "redis":
		store, err = cache.NewRedis(cache.RedisConfig{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis cache", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown cache driver", zap.String("driver", cfg.Cache.Driver))
	}
	defer store.Close()

	// Search backend. Demo deployments may run without one; the gateway
	// serves synthetic results when the backend fails.
	var backend gateway.Backend
	var schemaFetcher schema.MappingFetcher
	var backendPinger healthuc.BackendPinger
	if cfg.Search.URL != "" {
		client := elastic.NewClient(elastic.Config{
			URL:                cfg.Search.URL,
			Username:           cfg.Search.Username,
			Password:           cfg.Search.Password,
			Timeout:            time.Duration(cfg.Search.TimeoutSec) * time.Second,
			InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
			Logger:             logger,
		})
		backend = client
		schemaFetcher = client
		backendPinger = client
	} else {
		backend = offlineBackend{}
		schemaFetcher = schema.StaticFetcher{Properties: schema.DemoProperties()}
	}

	schemas := schema.NewProvider(schemaFetcher, time.Duration(cfg.Search.MappingTTLSec)*time.Second)

	gw := gateway.New(backend, store, gateway.Config{
		AllowedIndexes: cfg.Gateway.AllowedIndexes,
		AggCacheTTL:    time.Duration(cfg.Gateway.AggCacheTTLSec) * time.Second,
		DemoMode:       cfg.Search.DemoMode,
	}, logger)

	// Audit ledger
	ledger, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		logger.Fatal("Failed to open audit ledger", zap.Error(err))
	}
	defer func() { _ = ledger.Close() }()

	if pruned, err := ledger.Prune(context.Background(), cfg.Audit.RetentionDays); err != nil {
		logger.Warn("Audit retention prune failed", zap.Error(err))
	} else if pruned > 0 {
		logger.Info("Audit retention prune", zap.Int64("pruned", pruned))
	}

	// Auth
	tokens := auth.NewTokenIssuer(
		[]byte(cfg.Auth.JWTSecret),
		time.Duration(cfg.Auth.TokenTTLMin)*time.Minute,
		store,
	)
	users := auth.NewUserStore(userAccounts(cfg.Auth.Users))

	// Per-role query policies
	policies := make(map[string]policy.Config, len(cfg.Policy.Roles))
	for role, rp := range cfg.Policy.Roles {
		policies[role] = policy.Config{
			MaxResultSize:   rp.MaxResultSize,
			MaxLookbackDays: rp.MaxLookbackDays,
			AllowedIndexes:  rp.AllowedIndexes,
			TimestampField:  cfg.Policy.TimestampField,
		}
	}

	// Query generator
	generator := llm.NewGenerator(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
	})

	limiter := ratelimit.New(cfg.RateLimit.MaxPerMinute, time.Minute)

	// Create use case services
	chatSvc := chatuc.New(
		generator, knowledge.NewCatalog(), gw, schemas, ledger, limiter,
		policies, cfg.Search.DefaultIndex, logger,
	)
	statsSvc := statsuc.New(gw, logger)
	triageSvc := triageuc.New(gw, logger)
	alertSvc := alertinguc.New(ledger, logger)
	healthSvc := healthuc.New(ledger, backendPinger)
	remediateSvc := remediationuc.New(cfg.Remediation.WebhookURL, logger)

	// Create chi server
	server := chiTransport.NewServer(
		chatSvc, statsSvc, triageSvc, alertSvc, healthSvc, remediateSvc,
		ledger, schemas, tokens, users,
		[]byte(cfg.Audit.ExportHMACKey), cfg.Search.DefaultIndex, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.SessionMiddleware(tokens))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func userAccounts(users map[string]config.UserConfig) map[string]auth.User {
	out := make(map[string]auth.User, len(users))
	for name, u := range users {
		out[name] = auth.User{PasswordHash: u.PasswordHash, Role: u.Role}
	}
	return out
}

// offlineBackend stands in when no search backend is configured. Every call
// fails with the backend sentinel, which demo mode converts to synthetic
// results at the gateway.
type offlineBackend struct{}

func (offlineBackend) Search(context.Context, string, []byte) (*elastic.SearchResponse, error) {
	return nil, fmt.Errorf("%w: no search backend configured", domain.ErrBackendUnavailable)
}

func (offlineBackend) MultiSearch(context.Context, string, [][]byte) ([]elastic.SearchResponse, error) {
	return nil, fmt.Errorf("%w: no search backend configured", domain.ErrBackendUnavailable)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
