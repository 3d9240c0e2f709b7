package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/scheduler"
	"github.com/example/teesched/internal/vault"
	"github.com/example/teesched/internal/window"
)

// Store is the Record Store as the API sees it.
type Store interface {
	Insert(ctx context.Context, req bookings.Request) (int64, error)
	GetByID(ctx context.Context, id int64) (bookings.Request, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
}

// SchedulerView is the read-only side of the scheduler. The API never drives it; the two
// only meet in the store.
type SchedulerView interface {
	Preview(ctx context.Context, today calendar.Date) ([]scheduler.Classified, error)
	Status() scheduler.Status
}

// Server is the JSON API for submitting, listing and withdrawing booking requests.
type Server struct {
	Bookings  Store
	Scheduler SchedulerView
	Vault     vault.Vault
	Rules     window.Rules
	// Today returns the scheduler's current calendar day.
	Today   func() calendar.Date
	Log     *zap.Logger
	Metrics http.Handler
	Health  func(ctx context.Context) error
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(recoverer(s.Log))

	r.Get("/healthz", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/scheduler", s.handleSchedulerStatus)
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", s.handleBookingCreate)
			r.Get("/", s.handleBookingList)
			r.Get("/{id}", s.handleBookingGet)
			r.Delete("/{id}", s.handleBookingDelete)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			s.Log.Warn("health check failed", zap.Error(err))
			respond(w, http.StatusServiceUnavailable, false, "store unavailable", nil, nil)
			return
		}
	}
	respond(w, http.StatusOK, true, "ok", nil, nil)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, true, "scheduler status", s.Scheduler.Status(), nil)
}

type createdBooking struct {
	ID      int64         `json:"id"`
	OpenDay calendar.Date `json:"open_day"`
}

func (s *Server) handleBookingCreate(w http.ResponseWriter, r *http.Request) {
	var sub bookings.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		respond(w, http.StatusBadRequest, false, "invalid JSON body", nil, err.Error())
		return
	}

	if err := sub.Validate(s.Today(), s.Rules.OpenOffsetDays); err != nil {
		var verr *bookings.ValidationError
		if errors.As(err, &verr) {
			respond(w, http.StatusBadRequest, false, "validation failed", nil, verr.Fields)
			return
		}
		s.serverError(w, "validate booking", err)
		return
	}

	password := []byte(sub.Password)
	secret, keyMaterial, err := s.Vault.Seal(password)
	clear(password)
	sub.Password = ""
	if err != nil {
		s.serverError(w, "seal credential", err)
		return
	}

	id, err := s.Bookings.Insert(r.Context(), sub.Request(secret, keyMaterial))
	if err != nil {
		s.serverError(w, "insert booking", err)
		return
	}

	target, _ := calendar.Parse(sub.TargetDate)
	s.Log.Info("booking submitted",
		zap.Int64("booking_id", id),
		zap.String("owner", sub.Owner),
		zap.String("facility", sub.Facility),
		zap.String("target_date", sub.TargetDate))

	respond(w, http.StatusCreated, true, "booking created", createdBooking{ID: id, OpenDay: s.Rules.OpenDay(target)}, nil)
}

func (s *Server) handleBookingList(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Scheduler.Preview(r.Context(), s.Today())
	if err != nil {
		s.serverError(w, "list bookings", err)
		return
	}
	respond(w, http.StatusOK, true, "bookings", rows, nil)
}

func (s *Server) handleBookingGet(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	req, err := s.Bookings.GetByID(r.Context(), id)
	if errors.Is(err, bookings.ErrNotFound) {
		respond(w, http.StatusNotFound, false, "booking not found", nil, nil)
		return
	}
	if err != nil {
		s.serverError(w, "get booking", err)
		return
	}
	respond(w, http.StatusOK, true, "booking", req, nil)
}

func (s *Server) handleBookingDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	n, err := s.Bookings.DeleteByID(r.Context(), id)
	if err != nil {
		s.serverError(w, "delete booking", err)
		return
	}
	if n == 0 {
		respond(w, http.StatusNotFound, false, "booking not found", nil, nil)
		return
	}
	s.Log.Info("booking withdrawn", zap.Int64("booking_id", id))
	respond(w, http.StatusOK, true, "booking deleted", map[string]int64{"deleted": n}, nil)
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond(w, http.StatusBadRequest, false, "invalid booking id", nil, nil)
		return 0, false
	}
	return id, true
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.Log.Error(op+" failed", zap.Error(err))
	if errors.Is(err, bookings.ErrStoreUnavailable) {
		respond(w, http.StatusServiceUnavailable, false, "store unavailable", nil, nil)
		return
	}
	respond(w, http.StatusInternalServerError, false, "internal error", nil, nil)
}

func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
