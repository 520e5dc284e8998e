package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pitstop/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, creating the database file and schema
// when missing.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- schedules ----

func (s *sqliteStore) CreateSchedule(ctx context.Context, sc Schedule) error {
	now := time.Now().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = sc.CreatedAt
	}
	if sc.Status == "" {
		sc.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, owner_ref, subject_ref, expression, timezone, kind, status, active, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sc.ID, sc.OwnerRef, sc.SubjectRef, sc.Expression, sc.Timezone, string(sc.Kind),
		string(sc.Status), boolInt(sc.Active), fmtTime(sc.CreatedAt), fmtTime(sc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpdateScheduleExpression(ctx context.Context, id, expression, timezone string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET expression = ?, timezone = ?, updated_at = ? WHERE id = ?`,
		expression, timezone, fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const scheduleCols = `id, owner_ref, subject_ref, expression, timezone, kind, status, active, created_at, updated_at`

func (s *sqliteStore) FindSchedule(ctx context.Context, id string) (Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (s *sqliteStore) FindActiveSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("find active schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkScheduleSent(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.casTransition(ctx, id, StatusSent, at)
}

func (s *sqliteStore) MarkScheduleCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.casTransition(ctx, id, StatusCancelled, at)
}

// casTransition applies pending+active -> status, inactive. The WHERE guard
// is what keeps a fire from resurrecting a concurrently cancelled or deleted
// schedule.
func (s *sqliteStore) casTransition(ctx context.Context, id string, to ScheduleStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET status = ?, active = 0, updated_at = ?
		 WHERE id = ? AND status = ? AND active = 1`,
		string(to), fmtTime(at), id, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark schedule %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) DeactivateSchedule(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = 0, updated_at = ? WHERE id = ?`,
		fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var (
		sc             Schedule
		kind, status   string
		active         int
		created, updat string
	)
	err := row.Scan(&sc.ID, &sc.OwnerRef, &sc.SubjectRef, &sc.Expression, &sc.Timezone,
		&kind, &status, &active, &created, &updat)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("scan schedule: %w", err)
	}
	sc.Kind = TaskKind(kind)
	sc.Status = ScheduleStatus(status)
	sc.Active = active != 0
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updat)
	return sc, nil
}

// ---- read models ----

func (s *sqliteStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, first_name, last_name, email) VALUES(?,?,?,?)`,
		u.ID, u.FirstName, u.LastName, u.Email,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *sqliteStore) FindUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *sqliteStore) CreateVehicle(ctx context.Context, v Vehicle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicles(id, user_id, make, model, year, license_plate) VALUES(?,?,?,?,?,?)`,
		v.ID, v.UserID, v.Make, v.Model, v.Year, v.LicensePlate,
	)
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

func (s *sqliteStore) FindVehicle(ctx context.Context, id string) (Vehicle, error) {
	var v Vehicle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, make, model, year, license_plate FROM vehicles WHERE id = ?`, id).
		Scan(&v.ID, &v.UserID, &v.Make, &v.Model, &v.Year, &v.LicensePlate)
	if errors.Is(err, sql.ErrNoRows) {
		return Vehicle{}, ErrNotFound
	}
	if err != nil {
		return Vehicle{}, fmt.Errorf("find vehicle: %w", err)
	}
	return v, nil
}

func (s *sqliteStore) CreateVehicleService(ctx context.Context, vs VehicleService) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicle_services(id, user_id, vehicle_id, service_type, service_date, next_service_date, cost, notes)
		 VALUES(?,?,?,?,?,?,?,?)`,
		vs.ID, vs.UserID, vs.VehicleID, vs.ServiceType,
		nullTime(vs.ServiceDate), nullTime(vs.NextServiceDate), vs.Cost, nullStr(vs.Notes),
	)
	if err != nil {
		return fmt.Errorf("create vehicle service: %w", err)
	}
	return nil
}

func (s *sqliteStore) FindVehicleService(ctx context.Context, id string) (VehicleService, error) {
	var (
		vs             VehicleService
		svcDate, nxt   sql.NullString
		notes          sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, vehicle_id, service_type, service_date, next_service_date, cost, notes
		 FROM vehicle_services WHERE id = ?`, id).
		Scan(&vs.ID, &vs.UserID, &vs.VehicleID, &vs.ServiceType, &svcDate, &nxt, &vs.Cost, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return VehicleService{}, ErrNotFound
	}
	if err != nil {
		return VehicleService{}, fmt.Errorf("find vehicle service: %w", err)
	}
	if svcDate.Valid {
		vs.ServiceDate = parseTime(svcDate.String)
	}
	if nxt.Valid {
		vs.NextServiceDate = parseTime(nxt.String)
	}
	vs.Notes = notes.String
	return vs, nil
}

// ---- helpers ----

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
