package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	FeedBase    string
	FeedKey     string
	FeedRPS     int

	ScanWorkers    int
	ScanInterval   time.Duration
	CacheTTL       time.Duration
	SessionTTL     time.Duration
	WSWriteTimeout time.Duration
	WSIdleTimeout  time.Duration
}

// Load reads the environment. A .env file in the working directory is applied
// first when present; real environment variables win over it.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/tripdeals?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		FeedBase:    env("FEED_BASE_URL", "http://localhost:9000"),
		FeedKey:     env("FEED_API_KEY", ""),
		FeedRPS:     atoi("FEED_RPS", 5),

		ScanWorkers:    atoi("SCAN_WORKERS", 4),
		ScanInterval:   seconds("SCAN_INTERVAL_SECONDS", 300),
		CacheTTL:       seconds("CACHE_TTL_SECONDS", 300),
		SessionTTL:     seconds("SESSION_TTL_SECONDS", 3600),
		WSWriteTimeout: seconds("WS_WRITE_TIMEOUT_SECONDS", 5),
		WSIdleTimeout:  seconds("WS_IDLE_TIMEOUT_SECONDS", 60),
	}
	if c.FeedKey == "" {
		log.Warn().Msg("FEED_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer setting")
	}
	return def
}

func seconds(k string, def int) time.Duration {
	return time.Duration(atoi(k, def)) * time.Second
}
