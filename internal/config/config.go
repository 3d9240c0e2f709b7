package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/teesched/internal/scheduler"
	"github.com/example/teesched/internal/trigger"
	"github.com/example/teesched/internal/vault"
	"github.com/example/teesched/internal/window"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string

	// scheduler
	TriggerTime    trigger.TimeOfDay
	Location       *time.Location
	OpenOffsetDays int
	RetryDays      int
	StoreBackoff   time.Duration
	ClockRecheck   time.Duration
	Concurrency    int
	Policy         scheduler.Policy

	VaultPolicy string
	MasterKey   []byte

	ExecutorURL     string
	ExecutorBin     string
	ExecutorTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogPath        string
	Debug          bool
	MetricsEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "sqlite://teesched.db")
	v.SetDefault("TRIGGER_TIME", "07:30:00")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("OPEN_OFFSET_DAYS", window.DefaultOpenOffsetDays)
	v.SetDefault("RETRY_DAYS", 0)
	v.SetDefault("STORE_BACKOFF", scheduler.DefaultBackoff.String())
	v.SetDefault("CLOCK_RECHECK", trigger.DefaultRecheck.String())
	v.SetDefault("CONCURRENCY", 1)
	v.SetDefault("RETIRE_ON_SUCCESS", string(scheduler.Delete))
	v.SetDefault("RETIRE_ON_PERMANENT", string(scheduler.Delete))
	v.SetDefault("RETIRE_ON_RETRYABLE", string(scheduler.Delete))
	v.SetDefault("VAULT_POLICY", vault.PolicyRecord)
	v.SetDefault("EXECUTOR_TIMEOUT", "2m")
	v.SetDefault("KAFKA_TOPIC", "teesched.outcomes")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("DEBUG", false)
	v.SetDefault("METRICS_ENABLED", true)
}

// FromEnv reads configuration from the environment, layered over an optional file named
// by CONFIG_FILE (toml, yaml or json). Environment variables win.
func FromEnv() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE %s: %w", file, err)
		}
	}

	cfg := Config{
		ListenAddr:     v.GetString("LISTEN_ADDR"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		OpenOffsetDays: v.GetInt("OPEN_OFFSET_DAYS"),
		RetryDays:      v.GetInt("RETRY_DAYS"),
		Concurrency:    v.GetInt("CONCURRENCY"),
		VaultPolicy:    strings.ToLower(v.GetString("VAULT_POLICY")),
		ExecutorURL:    v.GetString("EXECUTOR_URL"),
		ExecutorBin:    v.GetString("EXECUTOR_BIN"),
		KafkaBrokers:   splitCSV(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:     v.GetString("KAFKA_TOPIC"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		LogPath:        v.GetString("LOG_PATH"),
		Debug:          v.GetBool("DEBUG"),
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
	}

	var err error
	if cfg.TriggerTime, err = trigger.ParseTimeOfDay(v.GetString("TRIGGER_TIME")); err != nil {
		return Config{}, fmt.Errorf("invalid TRIGGER_TIME: %w", err)
	}
	if cfg.Location, err = loadLocation(v.GetString("TIMEZONE")); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	for key, dst := range map[string]*time.Duration{
		"STORE_BACKOFF":    &cfg.StoreBackoff,
		"CLOCK_RECHECK":    &cfg.ClockRecheck,
		"EXECUTOR_TIMEOUT": &cfg.ExecutorTimeout,
	} {
		if *dst, err = time.ParseDuration(v.GetString(key)); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	for key, dst := range map[string]*scheduler.Action{
		"RETIRE_ON_SUCCESS":   &cfg.Policy.OnSuccess,
		"RETIRE_ON_PERMANENT": &cfg.Policy.OnPermanent,
		"RETIRE_ON_RETRYABLE": &cfg.Policy.OnRetryable,
	} {
		if *dst, err = scheduler.ParseAction(v.GetString(key)); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if mk := v.GetString("MASTER_KEY"); mk != "" {
		if cfg.MasterKey, err = decodeB64(mk); err != nil {
			return Config{}, fmt.Errorf("MASTER_KEY: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Rules is the booking-window policy the scheduler and the API classify with.
func (c Config) Rules() window.Rules {
	return window.Rules{OpenOffsetDays: c.OpenOffsetDays, RetryDays: c.RetryDays}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("OPEN_OFFSET_DAYS/RETRY_DAYS: %w", err)
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("invalid CONCURRENCY %d (want 1..64)", c.Concurrency)
	}
	if c.StoreBackoff <= 0 {
		return fmt.Errorf("invalid STORE_BACKOFF %s", c.StoreBackoff)
	}
	if c.ClockRecheck < trigger.MinRecheck {
		return fmt.Errorf("invalid CLOCK_RECHECK %s (minimum %s)", c.ClockRecheck, trigger.MinRecheck)
	}
	if c.ExecutorTimeout <= 0 {
		return fmt.Errorf("invalid EXECUTOR_TIMEOUT %s", c.ExecutorTimeout)
	}
	switch c.VaultPolicy {
	case vault.PolicyRecord:
	case vault.PolicyMaster:
		if len(c.MasterKey) < vault.MinMasterKeyLen {
			return fmt.Errorf("VAULT_POLICY=master needs MASTER_KEY of at least %d bytes (base64); run `teesched keys`", vault.MinMasterKeyLen)
		}
	default:
		return fmt.Errorf("invalid VAULT_POLICY %q (want %s or %s)", c.VaultPolicy, vault.PolicyRecord, vault.PolicyMaster)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// decodeB64 also accepts a path to a file holding the value, for k8s secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
