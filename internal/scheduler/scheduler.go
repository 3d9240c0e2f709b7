package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/executor"
	"github.com/example/teesched/internal/guard"
	"github.com/example/teesched/internal/metrics"
	"github.com/example/teesched/internal/notify"
	"github.com/example/teesched/internal/trigger"
	"github.com/example/teesched/internal/vault"
	"github.com/example/teesched/internal/window"
)

const DefaultBackoff = 5 * time.Second

// ErrExecutorFailure wraps an executor error; the attempt counts as failed_retryable.
var ErrExecutorFailure = errors.New("scheduler: executor failure")

// ErrPassPanicked is returned by a firing whose pass panicked outside any single request.
var ErrPassPanicked = errors.New("scheduler: pass panicked")

// Store is the part of the Record Store the scheduler uses.
type Store interface {
	ListAll(ctx context.Context) ([]bookings.Request, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
	MarkAttempted(ctx context.Context, id int64, day calendar.Date, outcome string) error
}

// Scheduler fires once a day on Clock, attempts every due request once and retires
// expired ones. Store, Vault, Executor and Clock are required; the rest default.
type Scheduler struct {
	Store    Store
	Vault    vault.Vault
	Executor executor.Executor
	Clock    *trigger.Clock
	Guard    guard.Guard
	Notify   notify.Publisher
	Metrics  *metrics.Scheduler
	Log      *zap.Logger

	Rules       window.Rules
	Policy      Policy
	Concurrency int
	Backoff     time.Duration

	once sync.Once

	mu      sync.Mutex
	state   State
	last    *Report
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func (s *Scheduler) init() {
	s.once.Do(func() {
		if s.Guard == nil {
			s.Guard = guard.NewMemory()
		}
		if s.Notify == nil {
			s.Notify = notify.Nop{}
		}
		if s.Log == nil {
			s.Log = zap.NewNop()
		}
		if s.Rules.OpenOffsetDays == 0 {
			s.Rules.OpenOffsetDays = window.DefaultOpenOffsetDays
		}
		if s.Policy == (Policy{}) {
			s.Policy = DefaultPolicy()
		}
		if s.Concurrency < 1 {
			s.Concurrency = 1
		}
		if s.Backoff <= 0 {
			s.Backoff = DefaultBackoff
		}
	})
}

// Run blocks, firing once per day until ctx is done. Only cancellation ends it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.init()
	s.setState(Idle)
	defer s.setState(Stopped)

	s.Log.Info("scheduler started",
		zap.Time("next_fire", s.Clock.Next(s.Clock.Now())),
		zap.Int("open_offset_days", s.Rules.OpenOffsetDays),
		zap.Int("concurrency", s.Concurrency))

	err := s.Clock.Run(ctx, s.fire)
	s.Log.Info("scheduler stopped", zap.Error(err))
	return err
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	today := calendar.Of(at)
	log := s.Log.With(zap.String("day", today.ISO()))

	claimed, err := s.Guard.Claim(ctx, today)
	switch {
	case err != nil:
		log.Warn("firing guard unavailable, firing anyway", zap.Error(err))
	case !claimed:
		log.Info("day already fired by another scheduler, skipping")
		s.Metrics.Fired("skipped", at, 0)
		return
	}

	for {
		err := s.safeFire(ctx, log, today)
		if err == nil || ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, bookings.ErrStoreUnavailable):
			log.Warn("store unavailable, backing off", zap.Error(err), zap.Duration("backoff", s.Backoff))
		case errors.Is(err, ErrPassPanicked):
			log.Warn("scheduler pass panicked, backing off", zap.Error(err), zap.Duration("backoff", s.Backoff))
		default:
			log.Error("scheduler pass failed", zap.Error(err))
			return
		}

		if err := s.Clock.Sleep(ctx, s.Backoff); err != nil {
			return
		}
		if now := calendar.Of(s.Clock.Now()); now != today {
			log.Error("no complete pass today, giving up on it", zap.String("now", now.ISO()))
			return
		}
	}
}

// safeFire runs one pass and turns a panic into ErrPassPanicked, so the trigger loop
// survives it.
func (s *Scheduler) safeFire(ctx context.Context, log *zap.Logger, today calendar.Date) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during scheduler pass", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
		}
	}()
	_, err = s.Fire(ctx, today)
	return err
}

// Fire runs one pass for today: snapshot the store, attempt due requests, delete expired
// ones. Failures of single requests are logged and counted; only a failure to read the
// store is returned.
func (s *Scheduler) Fire(ctx context.Context, today calendar.Date) (Report, error) {
	s.init()
	s.setState(Firing)
	defer s.setState(Idle)

	begin := time.Now()
	rep := Report{RunID: uuid.NewString(), Day: today, Started: s.Clock.Now()}
	log := s.Log.With(zap.String("run_id", rep.RunID), zap.String("day", today.ISO()))

	reqs, err := s.Store.ListAll(ctx)
	if err != nil {
		s.Metrics.Fired("store_unavailable", rep.Started, time.Since(begin))
		return rep, err
	}

	var due, expired []bookings.Request
	for _, req := range reqs {
		class, err := s.Rules.Classify(today, req)
		if err != nil {
			rep.Malformed++
			s.Metrics.Malformed()
			log.Error("skipping malformed booking", zap.Int64("booking_id", req.ID), zap.Error(err))
			continue
		}
		switch class {
		case window.Due:
			due = append(due, req)
		case window.Expired:
			expired = append(expired, req)
		default:
			rep.Pending++
		}
	}
	rep.Due, rep.Expired = len(due), len(expired)

	// Due requests race the site's opening, so they go first.
	results := make([]Result, len(due))
	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i, req := range due {
		if ctx.Err() != nil {
			results[i] = Result{BookingID: req.ID, Class: window.Due, Err: "not attempted: " + ctx.Err().Error()}
			continue
		}
		i, req := i, req
		g.Go(func() error {
			results[i] = Result{BookingID: req.ID, Class: window.Due}
			defer s.contain(log, &results[i])
			results[i] = s.attempt(ctx, log, rep.RunID, today, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, req := range expired {
		results = append(results, s.safeExpire(ctx, log, rep.RunID, req))
	}

	rep.Results = results
	rep.Took = time.Since(begin)
	rep.tally()

	s.Metrics.Fired("ok", rep.Started, rep.Took)
	log.Info("scheduler pass finished",
		zap.Int("total", len(reqs)),
		zap.Int("due", rep.Due),
		zap.Int("expired", rep.Expired),
		zap.Int("pending", rep.Pending),
		zap.Int("malformed", rep.Malformed),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.FailedPermanent+rep.FailedRetryable),
		zap.Int("deleted", rep.Deleted),
		zap.Duration("took", rep.Took))

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep, nil
}

func (s *Scheduler) attempt(ctx context.Context, log *zap.Logger, runID string, today calendar.Date, req bookings.Request) Result {
	log = log.With(
		zap.Int64("booking_id", req.ID),
		zap.String("owner", req.Owner),
		zap.String("facility", req.Facility),
		zap.String("target_date", req.TargetDate),
		zap.String("target_time", req.TargetTime))

	out, err := s.execute(ctx, log, req)
	res := Result{BookingID: req.ID, Class: window.Due, Status: out.Status, Detail: out.Detail}
	if err != nil {
		res.Err = err.Error()
	}
	s.Metrics.Attempted(string(out.Status))

	// The attempt happened; record it even if we are shutting down.
	wctx := context.WithoutCancel(ctx)
	res.Action = s.Policy.For(out.Status)
	switch res.Action {
	case Retain:
		if err := s.Store.MarkAttempted(wctx, req.ID, today, string(out.Status)); err != nil {
			log.Error("failed to mark booking attempted", zap.Error(err))
		}
	default:
		n, err := s.Store.DeleteByID(wctx, req.ID)
		if err != nil {
			log.Error("failed to delete attempted booking", zap.Error(err))
		}
		res.Deleted = n > 0
		if n > 0 {
			s.Metrics.Retired("attempted")
		}
	}

	fields := []zap.Field{zap.String("outcome", string(out.Status)), zap.String("detail", out.Detail), zap.String("action", string(res.Action))}
	switch {
	case err != nil:
		log.Error("booking attempt failed", append(fields, zap.Error(err))...)
	case out.Status == bookings.Succeeded:
		log.Info("booking attempt succeeded", fields...)
	default:
		log.Warn("booking attempt rejected", fields...)
	}

	s.publish(wctx, log, notify.Event{
		Kind:       notify.KindAttempted,
		RunID:      runID,
		BookingID:  req.ID,
		Owner:      req.Owner,
		Facility:   req.Facility,
		TargetDate: req.TargetDate,
		TargetTime: req.TargetTime,
		Status:     string(out.Status),
		Detail:     out.Detail,
		Retired:    res.Deleted,
		At:         s.Clock.Now(),
	})
	return res
}

// execute opens the credential for exactly one executor call. The plaintext is wiped on
// every return path.
func (s *Scheduler) execute(ctx context.Context, log *zap.Logger, req bookings.Request) (out executor.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during booking attempt", zap.Any("panic", r), zap.Stack("stack"))
			out = executor.Outcome{Status: bookings.FailedRetryable, Detail: fmt.Sprintf("panic: %v", r)}
			err = fmt.Errorf("%w: panic: %v", ErrExecutorFailure, r)
		}
	}()

	secret, err := s.Vault.Open(req.Secret, req.KeyMaterial)
	if err != nil {
		return executor.Outcome{Status: bookings.FailedPermanent, Detail: "credential could not be decrypted"}, err
	}
	defer secret.Wipe()

	out, err = s.Executor.Attempt(ctx, executor.NewAttempt(req, secret))
	if err != nil {
		return executor.Outcome{Status: bookings.FailedRetryable, Detail: err.Error()}, fmt.Errorf("%w: %v", ErrExecutorFailure, err)
	}
	switch out.Status {
	case bookings.Succeeded, bookings.FailedPermanent, bookings.FailedRetryable:
	default:
		out.Status = bookings.FailedPermanent
	}
	return out, nil
}

func (s *Scheduler) expire(ctx context.Context, log *zap.Logger, runID string, req bookings.Request) Result {
	log = log.With(zap.Int64("booking_id", req.ID), zap.String("owner", req.Owner), zap.String("target_date", req.TargetDate))
	res := Result{BookingID: req.ID, Class: window.Expired}

	n, err := s.Store.DeleteByID(ctx, req.ID)
	if err != nil {
		res.Err = err.Error()
		log.Error("failed to delete expired booking", zap.Error(err))
		return res
	}
	res.Deleted = n > 0
	if n > 0 {
		s.Metrics.Retired("expired")
	}
	log.Info("deleted expired booking", zap.Bool("removed", n > 0))

	s.publish(ctx, log, notify.Event{
		Kind:       notify.KindExpired,
		RunID:      runID,
		BookingID:  req.ID,
		Owner:      req.Owner,
		Facility:   req.Facility,
		TargetDate: req.TargetDate,
		TargetTime: req.TargetTime,
		Retired:    res.Deleted,
		At:         s.Clock.Now(),
	})
	return res
}

func (s *Scheduler) safeExpire(ctx context.Context, log *zap.Logger, runID string, req bookings.Request) (res Result) {
	res = Result{BookingID: req.ID, Class: window.Expired}
	defer s.contain(log, &res)
	return s.expire(ctx, log, runID, req)
}

// contain is deferred around the handling of one request. A panic there is logged and
// recorded on res instead of taking down the pass.
func (s *Scheduler) contain(log *zap.Logger, res *Result) {
	r := recover()
	if r == nil {
		return
	}
	log.Error("panic while handling booking",
		zap.Int64("booking_id", res.BookingID),
		zap.String("class", res.Class.String()),
		zap.Any("panic", r),
		zap.Stack("stack"))
	res.Err = fmt.Sprintf("panic: %v", r)
	if res.Class == window.Due && res.Status == "" {
		res.Status = bookings.FailedRetryable
	}
}

func (s *Scheduler) publish(ctx context.Context, log *zap.Logger, e notify.Event) {
	if err := s.Notify.Publish(ctx, e); err != nil {
		log.Warn("failed to publish outcome", zap.Error(err))
	}
}

// Preview classifies every stored request for today without acting on any of them.
func (s *Scheduler) Preview(ctx context.Context, today calendar.Date) ([]Classified, error) {
	s.init()
	reqs, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Classified, 0, len(reqs))
	for _, req := range reqs {
		c := Classified{Request: req}
		class, err := s.Rules.Classify(today, req)
		if err != nil {
			c.Error = err.Error()
		} else {
			c.Class = class
		}
		out = append(out, c)
	}
	return out, nil
}

// Start runs the scheduler on its own goroutine. Calling it again is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.init()
	s.mu.Lock()
	if s.done != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop cancels a started scheduler and waits for the current pass to return. It is safe
// to call before Start and more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	if done == nil {
		s.state = Stopped
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped && st != Stopped && s.stopped {
		return
	}
	s.state = st
}

// NextFire is the instant the clock is waiting for, or zero when not waiting.
func (s *Scheduler) NextFire() time.Time {
	return s.Clock.Armed()
}

// Status is a point-in-time view for operators.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state}
	if s.last != nil {
		summary := *s.last
		summary.Results = nil
		st.LastRun = &summary
	}
	s.mu.Unlock()

	if next := s.NextFire(); !next.IsZero() {
		st.NextFire = &next
	}
	return st
}
