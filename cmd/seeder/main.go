package main

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"friendly_eats/internal/adapters/observability"
	redisad "friendly_eats/internal/adapters/redis"
	"friendly_eats/internal/app"
	"friendly_eats/internal/shared"
	mysqlrepo "friendly_eats/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("count", cfg.SeedCount).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db).WithMaxAttempts(cfg.TxMaxAttempts)
	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rc.Close()
	cache, broker := redisad.NewCache(rc), redisad.NewBroker(rc)

	workers := max(cfg.SeedWorkers, 1)
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	base := uint64(time.Now().UnixNano())

	for i := range cfg.SeedCount {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			defer sem.Release(1)

			// SeedService is single-goroutine; each job gets its own stream.
			seeder := app.NewSeedService(repo, cache, broker, base+uint64(n))
			id, err := seeder.SeedOne(ctx)
			if err != nil {
				failed.Add(1)
				log.Warn().Int("n", n).Err(err).Msg("seed failed")
				return
			}
			log.Info().Str("id", id).Msg("seed ok")
		}(i)
	}

	wg.Wait()
	log.Info().Int64("failed", failed.Load()).Msg("seeding completed")
}
