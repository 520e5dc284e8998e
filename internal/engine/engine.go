package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pitstop/internal/notify"
	"pitstop/internal/store"
	logx "pitstop/pkg/logx"
)

// Failure policies for dispatches that could not complete.
const (
	FailureRetain     = "retain"
	FailureDeactivate = "deactivate"
)

type Config struct {
	// Timezone is the default IANA zone new schedules are translated in.
	Timezone string
	// TickInterval is the registry sweep granularity.
	TickInterval time.Duration
	// FailurePolicy is FailureRetain or FailureDeactivate.
	FailurePolicy string
}

// Notifier is what the dispatcher sends mail through.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

// Service is the scheduling engine: the schedule store, the timer registry
// and the reconciler behind one API. The surrounding CRUD layer calls the
// mutation methods; every mutation persists first and then reconciles the
// live timer set.
type Service struct {
	cfg      Config
	log      logx.Logger
	st       store.Store
	notifier Notifier
	clock    Clock
	loc      *time.Location
	reg      *Registry
	handlers map[store.TaskKind]Handler

	mu      sync.Mutex
	started bool
}

func New(cfg Config, st store.Store, notifier Notifier, log logx.Logger) (*Service, error) {
	return NewWithClock(cfg, st, notifier, log, SystemClock())
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(cfg Config, st store.Store, notifier Notifier, log logx.Logger, clock Clock) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine timezone: %w", err)
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailureRetain
	}

	s := &Service{
		cfg:      cfg,
		log:      log,
		st:       st,
		notifier: notifier,
		clock:    clock,
		loc:      loc,
		reg:      NewRegistry(cfg.TickInterval, clock, log),
	}
	s.handlers = s.handlerTable()
	return s, nil
}

// Registry exposes the live timer registry (read-mostly; used by tests and
// the daemon's shutdown path).
func (s *Service) Registry() *Registry { return s.reg }

// Start reconciles persisted schedules into live timers and launches the
// sweep loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.reg.Start(ctx)
	s.log.Info("engine started",
		logx.String("tz", s.loc.String()),
		logx.Int("timers", s.reg.Len()))
	return nil
}

// Stop halts the sweep loop and clears every live timer.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.reg.Shutdown()
	s.reg.StopAll()
	s.log.Info("engine stopped")
}

// CreateSchedule persists a reminder schedule for the given instant and
// arms its timer. It returns the new schedule id.
func (s *Service) CreateSchedule(ctx context.Context, ownerRef, subjectRef string, at time.Time) (string, error) {
	expr, err := ExpressionFromTime(at, s.loc)
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	sch := store.Schedule{
		ID:         uuid.NewString(),
		OwnerRef:   ownerRef,
		SubjectRef: subjectRef,
		Expression: expr,
		Timezone:   s.loc.String(),
		Kind:       store.TaskSendServiceReminder,
		Status:     store.StatusPending,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.st.CreateSchedule(ctx, sch); err != nil {
		return "", err
	}
	if err := s.Reload(ctx); err != nil {
		s.log.Warn("reload after create failed", logx.Err(err))
	}
	s.log.Info("schedule created",
		logx.String("schedule", sch.ID),
		logx.String("spec", expr),
		logx.Time("target", at))
	return sch.ID, nil
}

// RescheduleOrCreate moves an existing schedule to a new instant. An
// unknown id falls back to creating a fresh pending schedule under that id;
// callers that lost track of an id keep working, and the dispatcher's
// missing-entity guard keeps such a row from sending anything.
func (s *Service) RescheduleOrCreate(ctx context.Context, id string, at time.Time) error {
	expr, err := ExpressionFromTime(at, s.loc)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	err = s.st.UpdateScheduleExpression(ctx, id, expr, s.loc.String(), now)
	if errors.Is(err, store.ErrNotFound) {
		err = s.st.CreateSchedule(ctx, store.Schedule{
			ID:         id,
			Expression: expr,
			Timezone:   s.loc.String(),
			Kind:       store.TaskSendServiceReminder,
			Status:     store.StatusPending,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return err
	}

	// Drop the old timer so the new expression takes effect, then reconcile.
	s.reg.Stop(id)
	if err := s.Reload(ctx); err != nil {
		s.log.Warn("reload after reschedule failed", logx.Err(err))
	}
	s.log.Info("schedule moved",
		logx.String("schedule", id),
		logx.String("spec", expr),
		logx.Time("target", at))
	return nil
}

// CancelSchedule marks the schedule cancelled and disarms its timer. The
// row is kept; DeleteSchedule removes it. Cancelling an unknown id returns
// store.ErrNotFound; cancelling an already terminal schedule is a no-op.
func (s *Service) CancelSchedule(ctx context.Context, id string) error {
	ok, err := s.st.MarkScheduleCancelled(ctx, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Either unknown or already sent/cancelled; only the former is an error.
		if _, err := s.st.FindSchedule(ctx, id); err != nil {
			return err
		}
	}
	s.reg.Stop(id)
	s.log.Info("schedule cancelled", logx.String("schedule", id))
	return nil
}

// DeleteSchedule removes the schedule row and disarms its timer.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.st.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.reg.Stop(id)
	s.log.Info("schedule deleted", logx.String("schedule", id))
	return nil
}

// Reload reconciles the live timer set with the persisted active
// schedules: every active schedule without a timer gets one. It never
// unregisters (mutation paths stop their own timers) and is safe to call
// repeatedly and concurrently with mutations.
func (s *Service) Reload(ctx context.Context) error {
	active, err := s.st.FindActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	for _, sch := range active {
		sch := sch
		err := s.reg.Register(sch.ID, sch.Expression, sch.Timezone, func(cbCtx context.Context) {
			s.dispatch(cbCtx, sch.ID, sch.Kind)
		})
		if err != nil {
			// One bad schedule must not block the rest of the pass.
			s.log.Error("schedule registration failed",
				logx.String("schedule", sch.ID),
				logx.String("spec", sch.Expression),
				logx.Err(err))
		}
	}
	return nil
}
