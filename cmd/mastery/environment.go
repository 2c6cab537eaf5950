package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/copilot-mastery/mastery/config"
	"github.com/copilot-mastery/mastery/internal/application/tracker"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/memory"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/pgstore"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/redisstore"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/sqlitestore"
	"github.com/copilot-mastery/mastery/internal/infrastructure/messaging"
	"github.com/copilot-mastery/mastery/internal/infrastructure/persistence/progressrepo"
	"github.com/copilot-mastery/mastery/pkg/logger"
	"github.com/copilot-mastery/mastery/pkg/retry"
)

// environment is everything a command needs, opened once per invocation.
type environment struct {
	cfg     *config.Config
	log     *logger.Logger
	store   kvstore.Store
	pg      *pgstore.Connection // set for the postgres backend only
	bus     *messaging.InMemoryEventBus
	tracker *tracker.Tracker
}

func openEnvironment(ctx context.Context, cfg *config.Config, log *logger.Logger) (*environment, error) {
	env := &environment{cfg: cfg, log: log}

	if err := env.openStore(ctx); err != nil {
		return nil, err
	}

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = cfg.Observability.EventsAsync
	busCfg.Logger = log
	busCfg.Middlewares = []messaging.Middleware{messaging.LoggingMiddleware(log)}
	env.bus = messaging.NewInMemoryEventBus(busCfg)
	if err := env.bus.SubscribeAll(messaging.LogHandler(log.With(logger.Component("events")))); err != nil {
		env.Close()
		return nil, err
	}

	repo := progressrepo.New(env.store)
	env.tracker = tracker.New(repo, repo, env.bus, log)

	log.Debug("environment ready",
		logger.Backend(cfg.Store.Backend),
		logger.String("config_file", cfg.File),
	)
	return env, nil
}

func (e *environment) openStore(ctx context.Context) error {
	start := time.Now()
	backend := e.cfg.Store.Backend
	log := e.log.With(logger.Backend(backend))

	var err error
	switch backend {
	case config.BackendMemory:
		e.store = memory.NewStore()

	case config.BackendSQLite:
		sc := sqlitestore.DefaultConfig()
		if e.cfg.SQLite.Path != "" {
			sc.Path = e.cfg.SQLite.Path
		}
		if e.cfg.SQLite.BusyTimeout > 0 {
			sc.BusyTimeout = e.cfg.SQLite.BusyTimeout
		}
		e.store, err = sqlitestore.Open(ctx, sc)

	case config.BackendRedis:
		e.store, err = e.openRedis(ctx, log)

	case config.BackendPostgres:
		e.store, err = e.openPostgres(ctx, log)

	default:
		err = fmt.Errorf("unknown store backend %q", backend)
	}
	if err != nil {
		return fmt.Errorf("open %s store: %w", backend, err)
	}

	log.Debug("store opened", logger.Latency(time.Since(start)))
	return nil
}

// connectNotify logs each connect attempt that will be retried.
func connectNotify(log *logger.Logger) retry.Notify {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("store connection failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}

// connectFailure classifies a failed connect attempt. Timeouts and unreachable
// servers are retried; anything else (bad URL, rejected credentials) is not.
func connectFailure(backend string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = shared.WrapError("store", "Connect", shared.ErrTimeout, backend+" did not answer in time", err)
	case errors.Is(err, redisstore.ErrConnection), errors.Is(err, pgstore.ErrConnection):
		err = shared.WrapError("store", "Connect", shared.ErrServiceUnavailable, backend+" is unreachable", err)
	}
	if !shared.IsRetryable(err) {
		return retry.Permanent(err)
	}
	return err
}

func (e *environment) openRedis(ctx context.Context, log *logger.Logger) (kvstore.Store, error) {
	rc := redisstore.DefaultConfig()
	rc.URL = e.cfg.Redis.URL
	rc.Host = e.cfg.Redis.Host
	rc.Port = e.cfg.Redis.Port
	rc.Password = e.cfg.Redis.Password
	rc.DB = e.cfg.Redis.DB
	rc.Namespace = e.cfg.Redis.Namespace
	rc.PoolSize = e.cfg.Redis.PoolSize
	rc.DialTimeout = e.cfg.Redis.DialTimeout
	rc.ReadTimeout = e.cfg.Redis.ReadTimeout
	rc.WriteTimeout = e.cfg.Redis.WriteTimeout

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Store.ConnectTimeout)
	defer cancel()

	return retry.Do(ctx, retry.ConnectPolicy(), connectNotify(log), func(ctx context.Context) (kvstore.Store, error) {
		store, err := redisstore.NewStore(ctx, rc)
		if err != nil {
			return nil, connectFailure(config.BackendRedis, err)
		}
		return store, nil
	})
}

func (e *environment) openPostgres(ctx context.Context, log *logger.Logger) (kvstore.Store, error) {
	pc := pgstore.DefaultConfig()
	pc.URL = e.cfg.Postgres.URL
	pc.MaxConns = e.cfg.Postgres.MaxConns
	pc.MinConns = e.cfg.Postgres.MinConns
	pc.MaxConnLifetime = e.cfg.Postgres.MaxConnLifetime
	pc.MaxConnIdleTime = e.cfg.Postgres.MaxConnIdleTime

	if _, err := pc.PoolConfig(); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, e.cfg.Store.ConnectTimeout)
	defer cancel()

	conn, err := retry.Do(connectCtx, retry.ConnectPolicy(), connectNotify(log), func(ctx context.Context) (*pgstore.Connection, error) {
		conn, err := pgstore.NewConnection(ctx, pc)
		if err != nil {
			return nil, connectFailure(config.BackendPostgres, err)
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}

	if e.cfg.Postgres.AutoMigrate {
		applied, err := pgstore.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if applied > 0 {
			log.Info("migrations applied", logger.Int("count", applied))
		}
	}

	e.pg = conn
	return pgstore.NewStore(conn), nil
}

// Close releases the bus and the store.
func (e *environment) Close() error {
	if e.bus != nil {
		_ = e.bus.Close()
	}
	var err error
	if e.store != nil {
		err = e.store.Close()
	}
	_ = e.log.Sync()
	return err
}
