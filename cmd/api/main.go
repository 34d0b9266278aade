package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"friendly_eats/internal/adapters/cloudstore"
	server "friendly_eats/internal/adapters/http_server"
	"friendly_eats/internal/adapters/observability"
	redisad "friendly_eats/internal/adapters/redis"
	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
	"friendly_eats/internal/storage/memory"
	mysqlrepo "friendly_eats/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg)

	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rc.Close()
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; cache and live updates degraded")
	}
	cache, broker := redisad.NewCache(rc), redisad.NewBroker(rc)

	var storage domain.ObjectStorage
	if cfg.CloudinaryURL != "" {
		cs, err := cloudstore.New(cfg.CloudinaryURL)
		if err != nil {
			log.Fatal().Err(err).Msg("cloudinary init failed")
		}
		storage = cs
	}

	q := app.NewQueryService(store, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:              q,
		Ratings:        app.NewRatingService(store, cache, broker),
		Images:         app.NewImageService(store, storage, cache, broker),
		Live:           app.NewLiveService(q, broker),
		JWTSecret:      []byte(cfg.JWTSecret),
		ReviewRPS:      cfg.ReviewRPS,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func openStore(cfg shared.Config) domain.EntityStore {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New()
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	return mysqlrepo.New(db).WithMaxAttempts(cfg.TxMaxAttempts)
}
