package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/logging"
	"github.com/example/teesched/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the JSON API and the daily scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.scheduler()
			if err != nil {
				return err
			}
			s.Start(ctx)
			defer s.Stop()

			ws := &web.Server{
				Bookings:  a.repo,
				Scheduler: s,
				Vault:     a.vault,
				Rules:     a.cfg.Rules(),
				Today:     a.today,
				Log:       logging.Component(a.log, "web"),
				Health:    a.db.Ping,
			}
			if a.cfg.MetricsEnabled {
				ws.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
			}

			err = web.Start(ctx, a.cfg.ListenAddr, ws.Routes(), a.log)
			a.log.Info("server shutting down", zap.Error(err))
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
