package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/scheduler"
)

func newFireCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Run one scheduler pass now, as if the trigger time had been reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			today := a.today()
			if date != "" {
				if today, err = calendar.Parse(date); err != nil {
					return err
				}
			}

			if dryRun {
				// no executor needed to classify
				s := &scheduler.Scheduler{Store: a.repo, Rules: a.cfg.Rules()}
				rows, err := s.Preview(ctx, today)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tOWNER\tFACILITY\tTARGET\tCLASS")
				for _, r := range rows {
					class := r.Class.String()
					if r.Error != "" {
						class = "malformed: " + r.Error
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s %s\t%s\n", r.ID, r.Owner, r.Facility, r.TargetDate, r.TargetTime, class)
				}
				return w.Flush()
			}

			s, err := a.scheduler()
			if err != nil {
				return err
			}
			report, err := s.Fire(ctx, today)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to run the pass for (YYYY/MM/DD), default today")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only classify bookings, attempt and delete nothing")
	return cmd
}
