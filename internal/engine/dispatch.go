package engine

import (
	"context"
	"errors"

	"pitstop/internal/notify"
	"pitstop/internal/store"
	logx "pitstop/pkg/logx"
)

// Handler performs the side effect for one task kind. Handlers receive only
// the schedule id and refetch everything else; state captured at
// registration time may be stale by the time the timer fires.
type Handler func(ctx context.Context, scheduleID string)

func (s *Service) handlerTable() map[store.TaskKind]Handler {
	return map[store.TaskKind]Handler{
		store.TaskSendServiceReminder: s.sendServiceReminder,
	}
}

func (s *Service) dispatch(ctx context.Context, id string, kind store.TaskKind) {
	h, ok := s.handlers[kind]
	if !ok {
		s.log.Error("no handler for task kind",
			logx.String("schedule", id),
			logx.String("kind", string(kind)))
		return
	}
	h(ctx, id)
}

// sendServiceReminder is the fire callback for service reminder schedules.
func (s *Service) sendServiceReminder(ctx context.Context, id string) {
	log := s.log.With(logx.String("schedule", id))

	sch, err := s.st.FindSchedule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("schedule gone before dispatch")
		s.reg.Stop(id)
		return
	}
	if err != nil {
		log.Error("schedule refetch failed", logx.Err(err))
		return
	}
	if !sch.Active || sch.Status != store.StatusPending {
		log.Debug("schedule no longer eligible",
			logx.String("status", string(sch.Status)),
			logx.Bool("active", sch.Active))
		s.reg.Stop(id)
		return
	}

	user, vehicle, svc, err := s.fetchEntities(ctx, sch)
	if err != nil {
		log.Warn("referenced entities missing; reminder not sent", logx.Err(err))
		s.failDispatch(ctx, id, log)
		return
	}

	msg := notify.ServiceReminder(user, vehicle, svc)
	msgID, err := s.notifier.Send(ctx, msg)
	if err != nil {
		log.Error("reminder send failed", logx.Err(err))
		s.failDispatch(ctx, id, log)
		return
	}

	ok, err := s.st.MarkScheduleSent(ctx, id, s.clock.Now())
	if err != nil {
		log.Error("mark sent failed", logx.Err(err))
		return
	}
	if !ok {
		// A concurrent cancel or delete won the compare-and-set. The mail is
		// already out (send and state change are not atomic), but the row
		// must not be resurrected to sent.
		log.Warn("schedule changed during dispatch; sent state not recorded")
		return
	}

	log.Info("service reminder dispatched",
		logx.String("to", user.Email),
		logx.String("message_id", msgID))
	s.reg.Stop(id)
}

func (s *Service) fetchEntities(ctx context.Context, sch store.Schedule) (store.User, store.Vehicle, store.VehicleService, error) {
	user, err := s.st.FindUser(ctx, sch.OwnerRef)
	if err != nil {
		return store.User{}, store.Vehicle{}, store.VehicleService{}, err
	}
	svc, err := s.st.FindVehicleService(ctx, sch.SubjectRef)
	if err != nil {
		return store.User{}, store.Vehicle{}, store.VehicleService{}, err
	}
	vehicle, err := s.st.FindVehicle(ctx, svc.VehicleID)
	if err != nil {
		return store.User{}, store.Vehicle{}, store.VehicleService{}, err
	}
	return user, vehicle, svc, nil
}

// failDispatch applies the configured failure policy after a dispatch that
// could not complete.
func (s *Service) failDispatch(ctx context.Context, id string, log logx.Logger) {
	switch s.cfg.FailurePolicy {
	case FailureDeactivate:
		if err := s.st.DeactivateSchedule(ctx, id, s.clock.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error("deactivate after failed dispatch failed", logx.Err(err))
		}
		s.reg.Stop(id)
	default:
		// retain: schedule stays active; the next reload re-registers it and
		// the expression matches again a year out unless it is rescheduled.
		s.reg.Stop(id)
	}
}
