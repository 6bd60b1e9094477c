// Command custodia runs the evidence custody and case management engine:
// in-memory registries behind a JSON HTTP API, with a SQL archive
// mirroring the event stream and custody chains.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docket-systems/custodia/pkg/api"
	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/casefile"
	"github.com/docket-systems/custodia/pkg/config"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
	"github.com/docket-systems/custodia/pkg/evidence"
	"github.com/docket-systems/custodia/pkg/identity"
	"github.com/docket-systems/custodia/pkg/observability"
	"github.com/docket-systems/custodia/pkg/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Archive: postgres when DATABASE_URL points at one, sqlite otherwise.
	archive, closeArchive, err := openArchive(cfg.DatabaseURL)
	if err != nil {
		logger.Error("archive open failed", "error", err)
		os.Exit(1)
	}
	defer closeArchive()

	bus := events.NewBus()
	log := custody.NewLog()
	bus.Subscribe(store.EventHandler(archive, logger))
	log.OnAppend(store.CustodyHandler(archive, logger))
	if cfg.EventLogLines {
		bus.Subscribe(events.NewJSONSink(os.Stdout))
	}

	authority := identity.NewStaticAuthority()
	var rosterCaps map[string][]auth.Capability
	if cfg.RosterPath != "" {
		roster, err := config.LoadRoster(cfg.RosterPath)
		if err != nil {
			logger.Error("roster load failed", "path", cfg.RosterPath, "error", err)
			os.Exit(1)
		}
		rosterCaps = roster.Apply(authority)
		logger.Info("roster applied", "principals", len(roster.Principals))
	}

	evidenceRegistry := evidence.NewRegistry(log, bus)
	caseRegistry := casefile.NewRegistry(evidenceRegistry, authority, bus)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "custodia",
		ServiceVersion: "1.0.0",
		Environment:    envName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	if cfg.OTLPEndpoint != "" {
		metrics, err := observability.NewDomainMetrics(obs.Meter())
		if err != nil {
			logger.Error("metrics init failed", "error", err)
			os.Exit(1)
		}
		bus.Subscribe(metrics.Handler())
	}

	server := &api.Server{
		Evidence: api.NewEvidenceService(evidenceRegistry),
		Cases:    api.NewCaseService(caseRegistry),
		Bus:      bus,
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = ephemeralSecret()
		logger.Warn("JWT_SECRET not set, generated an ephemeral secret; tokens will not survive restarts")
	}
	validator := auth.NewJWTValidator([]byte(secret))

	var limiter auth.LimiterStore
	if cfg.RedisAddr != "" {
		limiter = auth.NewRedisLimiterStore(cfg.RedisAddr, "", 0)
		logger.Info("rate limiting via redis", "addr", cfg.RedisAddr)
	} else {
		limiter = auth.NewLocalLimiterStore()
	}
	policy := auth.BackpressurePolicy{RPM: cfg.RateLimitRPM, Burst: cfg.RateBurst}

	var handler http.Handler = server.Routes()
	handler = auth.RateLimitMiddleware(limiter, policy)(handler)
	handler = api.AccessLog(logger)(handler)
	handler = auth.NewMiddleware(validator, rosterCaps)(handler)
	handler = obs.Middleware(handler)
	handler = auth.RequestIDMiddleware(handler)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("custodia listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openArchive(url string) (store.Archive, func(), error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		a, err := store.OpenPostgres(url)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	}
	a, err := store.OpenSQLite(url)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { _ = a.Close() }, nil
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func envName() string {
	if e := os.Getenv("ENVIRONMENT"); e != "" {
		return e
	}
	return "development"
}
