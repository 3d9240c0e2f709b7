package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/executor"
	"github.com/example/teesched/internal/guard"
	"github.com/example/teesched/internal/logging"
	"github.com/example/teesched/internal/metrics"
	"github.com/example/teesched/internal/migrate"
	"github.com/example/teesched/internal/notify"
	"github.com/example/teesched/internal/scheduler"
	"github.com/example/teesched/internal/trigger"
	"github.com/example/teesched/internal/vault"
)

// app holds everything a command needs. Only the parts a command asks for are built.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	db       db.Conn
	repo     *bookings.Repo
	vault    vault.Vault
	clock    *trigger.Clock
	registry *prometheus.Registry

	closers []func() error
}

func newApp(ctx context.Context, migrateUp bool) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogPath, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = d
	a.closers = append(a.closers, func() error { d.Close(); return nil })

	if err := d.Ping(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		if err := migrate.Up(ctx, d); err != nil {
			a.close()
			return nil, err
		}
	}

	if a.vault, err = vault.New(cfg.VaultPolicy, cfg.MasterKey); err != nil {
		a.close()
		return nil, err
	}

	a.repo = bookings.NewRepo(d)
	a.clock = trigger.New(cfg.TriggerTime, cfg.Location, trigger.WithRecheck(cfg.ClockRecheck))
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	log.Info("configuration loaded",
		zap.String("trigger_time", cfg.TriggerTime.String()),
		zap.String("timezone", cfg.Location.String()),
		zap.String("dialect", string(d.Dialect())),
		zap.String("vault_policy", cfg.VaultPolicy),
		zap.Int("open_offset_days", cfg.OpenOffsetDays),
		zap.Int("retry_days", cfg.RetryDays))

	return a, nil
}

func (a *app) today() calendar.Date {
	return calendar.Of(a.clock.Now())
}

// scheduler wires the executor, firing guard and outcome publisher.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	ex, err := executor.FromConfig(a.cfg.ExecutorURL, a.cfg.ExecutorBin, a.cfg.ExecutorTimeout)
	if err != nil {
		if errors.Is(err, executor.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: set EXECUTOR_URL or EXECUTOR_BIN", err)
		}
		return nil, err
	}

	var g guard.Guard
	if a.cfg.RedisAddr != "" {
		r := guard.NewRedis(guard.RedisConfig{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword, DB: a.cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.Ping(ctx); err != nil {
			a.log.Warn("redis firing guard unreachable at startup", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		a.closers = append(a.closers, r.Close)
		g = r
	}

	var pub notify.Publisher = notify.Nop{}
	if len(a.cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, k.Close)
		pub = k
	}

	var m *metrics.Scheduler
	if a.cfg.MetricsEnabled {
		m = metrics.NewScheduler(a.registry)
	}

	return &scheduler.Scheduler{
		Store:       a.repo,
		Vault:       a.vault,
		Executor:    ex,
		Clock:       a.clock,
		Guard:       g,
		Notify:      pub,
		Metrics:     m,
		Log:         logging.Component(a.log, "scheduler"),
		Rules:       a.cfg.Rules(),
		Policy:      a.cfg.Policy,
		Concurrency: a.cfg.Concurrency,
		Backoff:     a.cfg.StoreBackoff,
	}, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintln(os.Stderr, "close:", err)
		}
	}
	a.closers = nil
}
