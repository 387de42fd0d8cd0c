// Command iamcored wires every component of the IAM backend together:
// the eventstore, the command layer, the projection registry, the
// permission engine, and the session/token/auth services. It exposes a
// single operational surface, a /healthz liveness endpoint, and runs a
// background janitor for session sweep and projection-metric refresh.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"iamcore/internal/auth"
	"iamcore/internal/command"
	"iamcore/internal/config"
	"iamcore/internal/permission"
	"iamcore/internal/projection"
	"iamcore/internal/readmodel"
	"iamcore/internal/readmodel/reducers"
	"iamcore/internal/session"
	"iamcore/internal/store/migrations"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/idgen"
	"iamcore/pkg/logging"
	"iamcore/pkg/txstore"
)

func main() {
	logger, err := logging.New(os.Getenv("IAMCORE_ENV") != "production")
	if err != nil {
		log.Fatalf("iamcored: init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("iamcored: load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.ContextWithLogger(ctx, logger)

	if err := migrations.Up(cfg.DatabaseDSN); err != nil {
		logger.Fatalf("iamcored: run migrations: %v", err)
	}

	pool := connectWithRetry(ctx, logger, cfg.DatabaseDSN)
	defer pool.Close()

	ids, err := idgen.NewGenerator(cfg.WorkerID)
	if err != nil {
		logger.Fatalf("iamcored: init id generator: %v", err)
	}

	es, err := eventstore.New(ctx, pool, ids, cfg.Eventstore)
	if err != nil {
		logger.Fatalf("iamcored: init eventstore: %v", err)
	}
	defer es.Close()

	store := txstore.New(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Fatalf("iamcored: connect redis: %v", err)
	}
	defer redisClient.Close()

	users := readmodel.NewUserQueries(store)
	orgs := readmodel.NewOrgQueries(store)
	projs := readmodel.NewProjectQueries(store)
	apps := readmodel.NewAppQueries(store)
	members := readmodel.NewMemberQueries(store)
	grants := readmodel.NewGrantQueries(store)

	sessionStore := session.NewStore(redisClient, cfg.SessionTTL)
	tokenService := session.NewTokenService(redisClient, session.TokenConfig{
		Secret:     []byte(cfg.Token.Secret),
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	})

	// app bundles the full domain surface (commands, queries, permission
	// engine, auth provider). §6.1/§6.2 define these as the command/query
	// API consumed by transport handlers; this module's Non-goals exclude
	// that transport layer, so app is constructed and logged here but has
	// no HTTP/gRPC front door of its own (/healthz checks the pool, Redis
	// and the eventstore, not app).
	app := struct {
		commands   *command.Commands
		users      readmodel.UserQueries
		orgs       readmodel.OrgQueries
		projects   readmodel.ProjectQueries
		apps       readmodel.AppQueries
		members    readmodel.MemberQueries
		grants     readmodel.GrantQueries
		permission *permission.Engine
		auth       *auth.Provider
	}{
		commands:   command.New(es, ids, users, orgs, projs, apps),
		users:      users,
		orgs:       orgs,
		projects:   projs,
		apps:       apps,
		members:    members,
		grants:     grants,
		permission: permission.NewEngine(members, grants),
		auth:       auth.NewProvider(users, sessionStore, tokenService, ids),
	}
	logger.Infof("iamcored: domain surface ready (commands=%T, permission=%T, auth=%T)", app.commands, app.permission, app.auth)

	registry := projection.NewRegistry(es, nil)
	registerProjections(registry, cfg, store, es)
	if err := registry.StartAll(ctx); err != nil {
		logger.Fatalf("iamcored: start projections: %v", err)
	}
	defer registry.StopAll()

	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() {
		if err := sessionStore.CleanupExpired(ctx); err != nil {
			logger.Warnf("janitor: cleanup sessions: %v", err)
		}
		if err := registry.RefreshMetrics(ctx, cfg.InstanceID); err != nil {
			logger.Warnf("janitor: refresh projection metrics: %v", err)
		}
	}); err != nil {
		logger.Fatalf("iamcored: schedule janitor: %v", err)
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(pool, redisClient, es))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         ":" + cfg.HealthPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("iamcored: listening on :%s", cfg.HealthPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("iamcored: http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("iamcored: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("iamcored: http shutdown: %v", err)
	}
}

func connectWithRetry(ctx context.Context, logger logging.Logger, dsn string) *pgxpool.Pool {
	const maxRetries = 30
	const retryDelay = 2 * time.Second

	var pool *pgxpool.Pool
	var err error
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool
			}
			pool.Close()
		}
		logger.Warnf("iamcored: database not ready (attempt %d/%d): %v", i+1, maxRetries, err)
		time.Sleep(retryDelay)
	}
	logger.Fatalf("iamcored: database unreachable after %d attempts: %v", maxRetries, err)
	return nil
}

func registerProjections(registry *projection.Registry, cfg config.Config, store *txstore.Store, es eventstore.EventStore) {
	type spec struct {
		name           string
		aggregateTypes []string
		reducer        projection.Reducer
	}
	specs := []spec{
		{"users", []string{"user"}, reducers.NewUserReducer(store)},
		{"orgs", []string{"org"}, reducers.NewOrgReducer(store)},
		{"projects", []string{"project"}, reducers.NewProjectReducer(store)},
		{"applications", []string{"application"}, reducers.NewApplicationReducer(store)},
		{"members", []string{"instance", "org", "project"}, reducers.NewMemberReducer(store)},
		{"grants", []string{"project", "user_grant"}, reducers.NewGrantReducer(store)},
	}
	for _, s := range specs {
		pcfg := cfg.ProjectionBase
		pcfg.Name = s.name
		pcfg.AggregateTypes = s.aggregateTypes
		registry.Register(projection.NewHandler(pcfg, store, es, s.reducer))
	}
}

func healthzHandler(pool *pgxpool.Pool, redisClient *redis.Client, es eventstore.EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK

		if err := pool.Ping(ctx); err != nil {
			status = "database unavailable"
			code = http.StatusServiceUnavailable
		} else if err := redisClient.Ping(ctx).Err(); err != nil {
			status = "redis unavailable"
			code = http.StatusServiceUnavailable
		} else if err := es.Health(ctx); err != nil {
			status = "eventstore unavailable"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
