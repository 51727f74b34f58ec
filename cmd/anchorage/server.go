package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-labs/anchorage/pkg/anchor"
	"github.com/meridian-labs/anchorage/pkg/api"
	"github.com/meridian-labs/anchorage/pkg/auth"
	"github.com/meridian-labs/anchorage/pkg/config"
	"github.com/meridian-labs/anchorage/pkg/observability"
	"github.com/meridian-labs/anchorage/pkg/rules"
	"github.com/meridian-labs/anchorage/pkg/store"
	"github.com/meridian-labs/anchorage/pkg/webhook"

	_ "github.com/lib/pq" // Postgres driver
)

// servingDBPath returns the SQLite path for the serving store. When
// DATABASE_URL points at Postgres that connection only backs the dedup
// ledger and checkpoints; the serving tables stay local.
func servingDBPath(cfg *config.Config) string {
	if cfg.IsPostgres() {
		return "anchorage.db"
	}
	return cfg.DatabaseURL
}

func setupLogger(level string) {
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
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// ledgerPruner is implemented by the SQL-backed ledgers. The Redis
// ledger prunes itself through key TTLs.
type ledgerPruner interface {
	Prune(ctx context.Context, window time.Duration) (int64, error)
}

// runJanitor drops expired dedup ledger rows and idempotency entries on
// a fixed cadence.
func runJanitor(ctx context.Context, logger *slog.Logger, ledger anchor.Ledger, idem *api.SQLiteIdempotencyStore, window time.Duration) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p, ok := ledger.(ledgerPruner); ok {
				if n, err := p.Prune(ctx, window); err != nil {
					logger.Warn("ledger prune failed", "error", err)
				} else if n > 0 {
					logger.Debug("ledger pruned", "rows", n)
				}
			}
			if err := idem.Prune(); err != nil {
				logger.Warn("idempotency prune failed", "error", err)
			}
		}
	}
}

func runServer(stderr io.Writer) int {
	cfg := config.Load()
	setupLogger(cfg.LogLevel)
	logger := slog.Default().With("component", "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(servingDBPath(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	if err := store.Migrate(ctx, db); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}

	locations := store.NewLocationStore(db)
	events := store.NewEventStore(db)
	ruleStore := store.NewRuleStore(db)

	var (
		ledger      anchor.Ledger
		checkpoints anchor.CheckpointStore
	)
	switch {
	case cfg.RedisAddr != "":
		redisLedger := store.NewRedisDedupLedger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DedupWindow)
		if err := redisLedger.Ping(ctx); err != nil {
			fmt.Fprintf(stderr, "redis unreachable: %v\n", err)
			return 1
		}
		ledger = redisLedger
		checkpoints = store.NewCheckpointStore(db)
		logger.Info("dedup ledger backend", "backend", "redis", "addr", cfg.RedisAddr)
	case cfg.IsPostgres():
		pg, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(stderr, "open postgres: %v\n", err)
			return 1
		}
		defer func() { _ = pg.Close() }()
		if err := store.MigratePostgres(ctx, pg); err != nil {
			fmt.Fprintf(stderr, "migrate postgres: %v\n", err)
			return 1
		}
		ledger = store.NewPostgresDedupLedger(pg)
		checkpoints = store.NewPostgresCheckpointStore(pg)
		logger.Info("dedup ledger backend", "backend", "postgres")
	default:
		ledger = store.NewDedupLedger(db)
		checkpoints = store.NewCheckpointStore(db)
		logger.Info("dedup ledger backend", "backend", "sqlite")
	}

	engineCfg := anchor.Config{
		Precision:          cfg.GridPrecision,
		DedupWindow:        cfg.DedupWindow,
		CheckpointInterval: cfg.CheckpointInterval,
	}
	if cfg.ProfilesDir != "" {
		profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
		if err != nil {
			fmt.Fprintf(stderr, "load profiles: %v\n", err)
			return 1
		}
		logger.Info("chain profiles loaded", "count", len(profiles))
		if p, ok := profiles["default"]; ok {
			if p.GridPrecision > 0 {
				engineCfg.Precision = p.GridPrecision
			}
			engineCfg.DedupWindow = p.DedupWindow(engineCfg.DedupWindow)
			engineCfg.CheckpointInterval = p.CheckpointInterval(engineCfg.CheckpointInterval)
		}
	}
	engine := anchor.NewEngine(engineCfg, locations, ledger, checkpoints)

	matcher, err := rules.NewMatcher(ruleStore)
	if err != nil {
		fmt.Fprintf(stderr, "rule matcher: %v\n", err)
		return 1
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "anchorage",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "observability: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	notifier := webhook.NewNotifier(5 * time.Second)
	svc := api.NewService(engine, locations, events, ruleStore, matcher, notifier)

	authMW := auth.NewMiddleware(auth.NewJWTValidator(cfg.JWTSecret), cfg.APITokenBcrypt)
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	idem := api.NewSQLiteIdempotencyStore(db, cfg.DedupWindow)

	go runJanitor(ctx, logger, ledger, idem, cfg.DedupWindow)

	r := chi.NewRouter()
	r.Use(auth.RequestIDMiddleware)
	r.Use(auth.CORSMiddleware(nil))
	r.Use(obs.Middleware)
	r.Use(limiter.Handler)
	r.Use(authMW.Handler)
	r.Use(api.IdempotencyMiddleware(idem))
	svc.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "shutdown: %v\n", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "server: %v\n", err)
			return 1
		}
		return 0
	}
}
