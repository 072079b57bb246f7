package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/entitycache/internal/cache"
	"github.com/dropDatabas3/entitycache/internal/config"
	httpserver "github.com/dropDatabas3/entitycache/internal/http"
	"github.com/dropDatabas3/entitycache/internal/journal"
	"github.com/dropDatabas3/entitycache/internal/metrics"
	"github.com/dropDatabas3/entitycache/internal/observability/logger"
	"github.com/dropDatabas3/entitycache/internal/rate"
	"github.com/dropDatabas3/entitycache/internal/security/secretbox"
	storepg "github.com/dropDatabas3/entitycache/internal/store/pg"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func main() {
	var (
		flagConfig  = flag.String("config", "configs/config.yaml", "Path al YAML de configuración")
		flagEnvFile = flag.String("env-file", ".env", "Path al .env (opcional)")
	)
	flag.Parse()

	if fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			fmt.Printf("env file cargado: %s\n", *flagEnvFile)
		}
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "cached",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := metrics.RegisterCache(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("metrics register", logger.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Descifrar la password de redis una sola vez; backend y limiter la
	// comparten.
	if enc := strings.TrimSpace(cfg.Cache.Redis.PassEnc); enc != "" && cfg.Security.SecretBoxMasterKey != "" {
		dec, err := secretbox.Decrypt(cfg.Security.SecretBoxMasterKey, enc)
		if err != nil {
			log.Fatal("redis pass_enc", logger.Err(err))
		}
		cfg.Cache.Redis.Password = dec
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatal("backend init", logger.Err(err))
	}

	jnl, jnlClose, err := buildJournal(ctx, cfg)
	if err != nil {
		log.Fatal("journal init", logger.Err(err))
	}

	fetcher, err := storepg.New(ctx, cfg.Storage.DSN, storepg.Config{
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("fetcher init", logger.Err(err))
	}

	rt, err := cache.NewReadThrough(backend, jnl, fetcher, cache.ReadThroughConfig{})
	if err != nil {
		log.Fatal("cache init", logger.Err(err))
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Cache:        rt,
		AdminAPIKey:  cfg.Server.AdminAPIKey,
		AdminLimiter: buildLimiter(cfg),
	})
	srv := httpserver.NewServer(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info("cached listening",
		zap.String("addr", cfg.Server.Addr),
		logger.Driver(strings.ToLower(cfg.Cache.Kind)),
		zap.String("journal", strings.ToLower(cfg.Journal.Driver)),
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", logger.Err(err))
	}
	if err := rt.Close(); err != nil {
		log.Warn("backend close", logger.Err(err))
	}
	fetcher.Close()
	jnlClose()
	log.Info("bye")
}

func buildBackend(cfg *config.Config) (cache.Backend, error) {
	switch strings.ToLower(cfg.Cache.Kind) {
	case "memory":
		return cache.NewMemory(cfg.Cache.Memory.Shards), nil
	case "gocache":
		return cache.NewGoCache(cfg.GoCacheTTL()), nil
	case "redis":
		return cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("cache.kind desconocido: %q", cfg.Cache.Kind)
	}
}

// buildLimiter arma el rate limiter de los endpoints admin. Con redis como
// backend el contador se comparte entre réplicas; si no, es por proceso.
func buildLimiter(cfg *config.Config) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	if strings.ToLower(cfg.Cache.Kind) == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "ec:rl:", cfg.Rate.MaxRequests, cfg.RateWindow())
	}
	return rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
}

func buildJournal(ctx context.Context, cfg *config.Config) (journal.Journal, func(), error) {
	switch strings.ToLower(cfg.Journal.Driver) {
	case "memory":
		return journal.NewMemory(), func() {}, nil
	case "postgres":
		jnl, pool, err := journal.OpenPG(ctx, cfg.Journal.DSN)
		if err != nil {
			return nil, nil, err
		}
		return jnl, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("journal.driver desconocido: %q", cfg.Journal.Driver)
	}
}
