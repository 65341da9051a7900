package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aridsondez/monjobs/internal/ack"
	"github.com/aridsondez/monjobs/internal/api"
	"github.com/aridsondez/monjobs/internal/config"
	"github.com/aridsondez/monjobs/internal/logging"
	"github.com/aridsondez/monjobs/internal/queue/store"
	badgerstore "github.com/aridsondez/monjobs/internal/queue/store/badger"
	"github.com/aridsondez/monjobs/internal/queue/store/memory"
	pgstore "github.com/aridsondez/monjobs/internal/queue/store/postgres"
	redisstore "github.com/aridsondez/monjobs/internal/queue/store/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer cleanup()

	svc := ack.NewService(st,
		ack.WithLogger(logger.Named("ack")),
		ack.WithBackendName(cfg.StoreBackend),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := api.NewServer(addr, svc, cfg.RequestTimeout)

	logger.Info("HTTP server listening", zap.String("addr", addr), zap.String("backend", cfg.StoreBackend))
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	_ = httpSrv.Shutdown(context.Background())
}

// openStore connects the configured backend. cleanup releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectionTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgx ping: %w", err)
		}
		st := pgstore.New(pool)
		if err := st.EnsureSchema(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil

	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(connectCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		st := redisstore.New(rdb, cfg.RedisKeyPrefix)
		return st, func() { _ = st.Close() }, nil

	case config.BackendBadger:
		st, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.BackendMemory:
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
