package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/example/teesched/internal/bookings"
)

// ExitPermanent is the exit status a booking binary uses for "do not try again".
const ExitPermanent = 3

const maxDetail = 512

// Command runs a booking binary once per attempt:
//
//	<bin> --booking-id N --username U --club C --date D --time T [--player P]...
//
// The password is written to stdin followed by a newline. Exit 0 is success,
// ExitPermanent is a permanent rejection and any other status is retryable.
type Command struct {
	bin     string
	timeout time.Duration
}

func NewCommand(bin string, timeout time.Duration) *Command {
	return &Command{bin: bin, timeout: timeout}
}

func (c *Command) args(a Attempt) []string {
	args := []string{
		"--booking-id", strconv.FormatInt(a.BookingID, 10),
		"--username", a.Owner,
		"--club", a.Facility,
		"--date", a.Date,
	}
	for _, t := range a.Times {
		args = append(args, "--time", t)
	}
	for _, p := range a.Participants {
		args = append(args, "--player", p)
	}
	return args
}

func (c *Command) Attempt(ctx context.Context, a Attempt) (Outcome, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stdin := make([]byte, 0, len(a.Secret)+1)
	stdin = append(append(stdin, a.Secret...), '\n')
	defer clear(stdin)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.args(a)...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	detail := tail(out.String())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, fmt.Errorf("executor: %s: %w", c.bin, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return Outcome{Status: bookings.Succeeded, Detail: detail}, nil
	case errors.As(err, &exitErr):
		if exitErr.ExitCode() == ExitPermanent {
			return Outcome{Status: bookings.FailedPermanent, Detail: detail}, nil
		}
		if exitErr.ExitCode() < 0 {
			return Outcome{}, fmt.Errorf("executor: %s killed: %w", c.bin, err)
		}
		return Outcome{Status: bookings.FailedRetryable, Detail: detail}, nil
	default:
		return Outcome{}, fmt.Errorf("executor: run %s: %w", c.bin, err)
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetail {
		s = s[len(s)-maxDetail:]
	}
	return s
}
