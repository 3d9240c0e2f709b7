package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/executor"
	"github.com/example/teesched/internal/vault"
)

// memStore is an in-memory Store. listErrs are returned, in order, by the first ListAll
// calls; the first listPanics calls panic instead. Deleting an id in deletePanics panics.
type memStore struct {
	mu           sync.Mutex
	rows         map[int64]bookings.Request
	nextID       int64
	listErrs     []error
	listPanics   int
	deletePanics map[int64]bool
	lists        int
	deletes      []int64
}

func newMemStore(reqs ...bookings.Request) *memStore {
	s := &memStore{rows: map[int64]bookings.Request{}}
	for _, r := range reqs {
		s.add(r)
	}
	return s
}

func (s *memStore) add(r bookings.Request) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.rows[r.ID] = r
	return r.ID
}

func (s *memStore) ListAll(context.Context) ([]bookings.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listPanics > 0 {
		s.listPanics--
		panic("list: nil pointer dereference")
	}
	if len(s.listErrs) > 0 {
		err := s.listErrs[0]
		s.listErrs = s.listErrs[1:]
		return nil, err
	}
	out := make([]bookings.Request, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DeleteByID(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	if s.deletePanics[id] {
		panic(fmt.Sprintf("delete %d: nil pointer dereference", id))
	}
	if _, ok := s.rows[id]; !ok {
		return 0, nil
	}
	delete(s.rows, id)
	return 1, nil
}

func (s *memStore) MarkAttempted(_ context.Context, id int64, day calendar.Date, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil
	}
	r.AttemptedOn = day.String()
	r.Attempts++
	r.LastOutcome = outcome
	s.rows[id] = r
	return nil
}

func (s *memStore) get(id int64) (bookings.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// plainVault "decrypts" by returning the ciphertext, except for "corrupt".
type plainVault struct{}

func (plainVault) Seal(p []byte) (string, string, error) { return string(p), "", nil }

func (plainVault) Open(ct, _ string) (vault.Secret, error) {
	if ct == "corrupt" {
		return nil, fmt.Errorf("%w: bad padding", vault.ErrDecryption)
	}
	return vault.Secret(ct), nil
}

type MockExecutor struct {
	mock.Mock

	mu      sync.Mutex
	secrets []vault.Secret
}

func (m *MockExecutor) Attempt(ctx context.Context, a executor.Attempt) (executor.Outcome, error) {
	m.mu.Lock()
	m.secrets = append(m.secrets, a.Secret)
	m.mu.Unlock()

	args := m.Called(ctx, a.BookingID, a.Secret.Reveal())
	return args.Get(0).(executor.Outcome), args.Error(1)
}

var errSiteDown = errors.New("dial tcp: connection refused")

// fakeSource advances on every Sleep and records the durations.
type fakeSource struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeSource) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeSource) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}
