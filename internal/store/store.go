package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an id does not resolve to a row.
var ErrNotFound = errors.New("not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "pending"
	StatusSent      ScheduleStatus = "sent"
	StatusCancelled ScheduleStatus = "cancelled"
)

// TaskKind tags what a schedule does when it fires. Kinds are dispatched
// through a fixed handler table in the engine; the store never holds
// executable logic.
type TaskKind string

const TaskSendServiceReminder TaskKind = "send_service_reminder"

// Schedule is a durable request for a one-shot notification.
//
// Expression is a 5-field cron pattern ("m h dom mon *") derived from the
// target instant in Timezone. It technically matches the same minute every
// year; Active plus the compare-and-set transitions below are what make the
// schedule one-shot.
type Schedule struct {
	ID         string
	OwnerRef   string // user id, resolved at fire time
	SubjectRef string // vehicle service id, resolved at fire time
	Expression string
	Timezone   string
	Kind       TaskKind
	Status     ScheduleStatus
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Read models. These rows are owned by the surrounding CRUD application;
// the engine only reads them when a schedule fires, so the reminder always
// reflects the entity state at fire time.

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

type Vehicle struct {
	ID           string
	UserID       string
	Make         string
	Model        string
	Year         int
	LicensePlate string
}

type VehicleService struct {
	ID              string
	UserID          string
	VehicleID       string
	ServiceType     string
	ServiceDate     time.Time
	NextServiceDate time.Time
	Cost            float64
	Notes           string
}

// Store is the persistence API used by the engine.
type Store interface {
	CreateSchedule(ctx context.Context, s Schedule) error
	UpdateScheduleExpression(ctx context.Context, id, expression, timezone string, at time.Time) error
	DeleteSchedule(ctx context.Context, id string) error
	FindSchedule(ctx context.Context, id string) (Schedule, error)
	FindActiveSchedules(ctx context.Context) ([]Schedule, error)

	// MarkScheduleSent flips a pending, active schedule to sent/inactive.
	// It reports false when the schedule was not eligible anymore (already
	// sent, cancelled, deactivated or deleted), which is how a fire racing
	// a cancel loses cleanly.
	MarkScheduleSent(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkScheduleCancelled flips a pending, active schedule to
	// cancelled/inactive, with the same eligibility semantics.
	MarkScheduleCancelled(ctx context.Context, id string, at time.Time) (bool, error)

	// DeactivateSchedule clears Active but leaves Status untouched.
	// Used by the "deactivate" failure policy.
	DeactivateSchedule(ctx context.Context, id string, at time.Time) error

	CreateUser(ctx context.Context, u User) error
	FindUser(ctx context.Context, id string) (User, error)
	CreateVehicle(ctx context.Context, v Vehicle) error
	FindVehicle(ctx context.Context, id string) (Vehicle, error)
	CreateVehicleService(ctx context.Context, vs VehicleService) error
	FindVehicleService(ctx context.Context, id string) (VehicleService, error)

	Close() error
}
