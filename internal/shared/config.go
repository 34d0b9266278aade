package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	MetricsAddr   string
	StoreDriver   string
	MySQLDSN      string
	RedisAddr     string
	RedisDB       int
	RedisPass     string
	CacheTTL      time.Duration
	TxMaxAttempts int
	CloudinaryURL string
	JWTSecret     string
	ReviewRPS     float64
	SeedCount     int
	SeedWorkers   int
	MaxUploadMB   int
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be parsed")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a number, using default")
		}
		return def
	}
	c := Config{
		AppEnv:        env("APP_ENV", "prod"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		MetricsAddr:   env("METRICS_ADDR", ":9100"),
		StoreDriver:   env("STORE_DRIVER", "mysql"),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/friendly_eats?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPass:     env("REDIS_PASSWORD", ""),
		RedisDB:       atoi("REDIS_DB", 0),
		CacheTTL:      time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		TxMaxAttempts: atoi("TX_MAX_ATTEMPTS", 5),
		CloudinaryURL: env("CLOUDINARY_URL", ""),
		JWTSecret:     env("JWT_SECRET", ""),
		ReviewRPS:     atof("REVIEW_RPS", 1),
		SeedCount:     atoi("SEED_COUNT", 20),
		SeedWorkers:   atoi("SEED_WORKERS", 4),
		MaxUploadMB:   atoi("MAX_UPLOAD_MB", 10),
	}
	if c.CloudinaryURL == "" {
		log.Warn().Msg("CLOUDINARY_URL is empty, image uploads are disabled")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty, write endpoints will reject every request")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
