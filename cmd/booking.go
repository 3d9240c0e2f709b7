package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
)

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "booking",
		Aliases: []string{"bookings"},
		Short:   "Manage booking requests without the API",
	}
	cmd.AddCommand(newBookingAddCmd())
	cmd.AddCommand(newBookingListCmd())
	cmd.AddCommand(newBookingDeleteCmd())
	return cmd
}

func newBookingAddCmd() *cobra.Command {
	var sub bookings.Submission

	c := &cobra.Command{
		Use:   "add",
		Short: "Store a booking request; the site password is read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			if sub.Password, err = readPassword(cmd.InOrStdin()); err != nil {
				return err
			}
			if err := sub.Validate(a.today(), a.cfg.OpenOffsetDays); err != nil {
				return err
			}

			password := []byte(sub.Password)
			secret, keyMaterial, err := a.vault.Seal(password)
			clear(password)
			sub.Password = ""
			if err != nil {
				return err
			}

			id, err := a.repo.Insert(ctx, sub.Request(secret, keyMaterial))
			if err != nil {
				return err
			}
			target, _ := calendar.Parse(sub.TargetDate)
			fmt.Fprintf(cmd.OutOrStdout(), "booking %d stored; it will be attempted on %s at %s\n",
				id, a.cfg.Rules().OpenDay(target), a.cfg.TriggerTime)
			return nil
		},
	}

	c.Flags().StringVar(&sub.Owner, "owner", "", "site username")
	c.Flags().StringVar(&sub.Facility, "facility", "", "club or course to book")
	c.Flags().StringVar(&sub.TargetDate, "date", "", "target date (YYYY/MM/DD)")
	c.Flags().StringVar(&sub.TargetTime, "time", "", "preferred tee time, e.g. 07:40")
	c.Flags().StringSliceVar(&sub.Participants, "player", nil, "participant name (repeat, up to 4)")
	for _, f := range []string{"owner", "facility", "date", "time", "player"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newBookingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored booking requests and how today classifies them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			reqs, err := a.repo.ListAll(ctx)
			if err != nil {
				return err
			}
			rules, today := a.cfg.Rules(), a.today()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOWNER\tFACILITY\tTARGET\tPLAYERS\tOPENS\tCLASS\tLAST")
			for _, r := range reqs {
				opens, class := "-", "malformed"
				if c, err := rules.Classify(today, r); err == nil {
					class = c.String()
					target, _ := calendar.Parse(r.TargetDate)
					opens = rules.OpenDay(target).String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Owner, r.Facility, r.TargetDate, r.TargetTime,
					bookings.JoinParticipants(r.Participants), opens, class, orDash(r.LastOutcome))
			}
			return w.Flush()
		},
	}
}

func newBookingDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Withdraw a booking request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid booking id %q", args[0])
			}

			ctx := context.Background()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.repo.DeleteByID(ctx, id)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("booking %d: %w", id, bookings.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booking %d deleted\n", id)
			return nil
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
