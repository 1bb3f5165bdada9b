// Package config loads the process-start configuration: listen
// address, persistence endpoint, allowed origins, history depth, save
// interval, outbound queue size, rate-limit threshold. There is no hot
// reload — Load is called once, at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved process configuration.
type Config struct {
	ListenAddr string

	// PersistenceDriver selects the Persistence adapter: "memory" or
	// "postgres".
	PersistenceDriver string
	PostgresDSN       string

	AllowedOrigins []string

	HistoryMax        int
	SaveInterval      time.Duration
	OutboundQueueSize int
	RateLimitPerSec   float64

	LoadTimeout time.Duration
	SaveTimeout time.Duration

	Debug bool
}

// defaults: history depth 100, save interval 1s, outbound queue 256,
// rate limit 20 msg/s, load timeout 5s, save timeout 10s.
func defaults() Config {
	return Config{
		ListenAddr:        ":8080",
		PersistenceDriver: "memory",
		AllowedOrigins:    []string{"*"},
		HistoryMax:        100,
		SaveInterval:      time.Second,
		OutboundQueueSize: 256,
		RateLimitPerSec:   20,
		LoadTimeout:       5 * time.Second,
		SaveTimeout:       10 * time.Second,
	}
}

// Load reads a .env file if present (ignored if absent) and then
// overlays environment variables on top of the defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PERSISTENCE_DRIVER")); v != "" {
		cfg.PersistenceDriver = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.AllowedOrigins = origins
	}
	if err := overlayInt(&cfg.HistoryMax, "HISTORY_MAX"); err != nil {
		return cfg, err
	}
	if err := overlayDuration(&cfg.SaveInterval, "SAVE_INTERVAL"); err != nil {
		return cfg, err
	}
	if err := overlayInt(&cfg.OutboundQueueSize, "OUTBOUND_QUEUE_SIZE"); err != nil {
		return cfg, err
	}
	if err := overlayFloat(&cfg.RateLimitPerSec, "RATE_LIMIT_PER_SEC"); err != nil {
		return cfg, err
	}
	if err := overlayDuration(&cfg.LoadTimeout, "LOAD_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := overlayDuration(&cfg.SaveTimeout, "SAVE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(os.Getenv("DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}

	if cfg.PersistenceDriver != "memory" && cfg.PersistenceDriver != "postgres" {
		return cfg, fmt.Errorf("config: unknown PERSISTENCE_DRIVER %q", cfg.PersistenceDriver)
	}
	if cfg.PersistenceDriver == "postgres" && cfg.PostgresDSN == "" {
		return cfg, fmt.Errorf("config: POSTGRES_DSN is required when PERSISTENCE_DRIVER=postgres")
	}
	if cfg.HistoryMax < 1 {
		return cfg, fmt.Errorf("config: HISTORY_MAX must be >= 1")
	}

	return cfg, nil
}

func overlayInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overlayFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func overlayDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
