package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/bidroom/internal/access"
	"github.com/npezzotti/bidroom/internal/api"
	"github.com/npezzotti/bidroom/internal/auth"
	"github.com/npezzotti/bidroom/internal/config"
	"github.com/npezzotti/bidroom/internal/database"
	"github.com/npezzotti/bidroom/internal/notify"
	"github.com/npezzotti/bidroom/internal/ratelimit"
	"github.com/npezzotti/bidroom/internal/server"
	"github.com/npezzotti/bidroom/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 10 * time.Second
	memorySweepInterval = time.Minute
)

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = lvl
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return l.Sugar().Named("bidroom"), nil
}

// newCounterStore picks redis when configured so counters are shared
// between instances. The returned func releases the store.
func newCounterStore(cfg *config.Config, logger *zap.SugaredLogger) (ratelimit.Store, func()) {
	if cfg.Redis.Addr == "" {
		ms := ratelimit.NewMemoryStore(memorySweepInterval)
		go ms.Run()
		logger.Info("rate limit counters kept in memory")
		return ms, ms.Stop
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// counters fail open, so an unreachable redis at startup is not fatal
		logger.Warnf("redis ping: %v", err)
	}

	logger.Infof("rate limit counters kept in redis at %s", cfg.Redis.Addr)
	return ratelimit.NewRedisStore(rdb, ""), func() {
		if err := rdb.Close(); err != nil {
			logger.Errorf("redis close: %v", err)
		}
	}
}

func main() {
	cfg, err := config.Load(pflag.CommandLine, os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("db open: %v", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Errorf("db close: %v", err)
		}
	}()

	store, closeStore := newCounterStore(cfg, logger)
	defer closeStore()

	limiter := ratelimit.NewLimiter(store, logger.Named("ratelimit"))
	oracle := access.NewOracle(dbConn, access.DefaultBreakerConfig(), logger.Named("access"))

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger.Named("chat"), dbConn, oracle, limiter, statsUpdater, cfg.Chat)
	if err != nil {
		logger.Fatalf("new chat server: %v", err)
	}

	authenticator := auth.NewAuthenticator(cfg.SigningKey)
	srv := api.NewApp(mux, logger.Named("api"), chatServer, dbConn, authenticator, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	var subscriber *notify.Subscriber
	if cfg.Nats.URL != "" {
		subscriber = notify.NewSubscriber(cfg.Nats.URL, cfg.Nats.Subject, chatServer, logger.Named("notify"))
		if err := subscriber.Start(); err != nil {
			logger.Fatalf("notification subscriber: %v", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infof("received signal: %s", sig)
	case err := <-errCh:
		logger.Errorf("server: %v", err)
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Errorf("HTTP server shutdown: %v", err)
	}

	logger.Info("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Errorf("chat server shutdown: %v", err)
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			logger.Errorf("notification subscriber: %v", err)
		}
	}

	logger.Info("shutdown complete")
}
