package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "pitstop/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "pitstop.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func pendingSchedule(id string) Schedule {
	return Schedule{
		ID:         id,
		OwnerRef:   "user-1",
		SubjectRef: "svc-1",
		Expression: "30 9 1 3 *",
		Timezone:   "UTC",
		Kind:       TaskSendServiceReminder,
		Status:     StatusPending,
		Active:     true,
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.FindSchedule(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Expression != "30 9 1 3 *" || got.Status != StatusPending || !got.Active {
		t.Fatalf("unexpected schedule: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	if _, err := st.FindSchedule(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateScheduleExpression(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	if err := st.UpdateScheduleExpression(ctx, "s1", "0 10 2 4 *", "UTC", at); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := st.FindSchedule(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Expression != "0 10 2 4 *" {
		t.Fatalf("expression = %q", got.Expression)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, at)
	}

	if err := st.UpdateScheduleExpression(ctx, "nope", "0 10 2 4 *", "UTC", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFindActiveSchedules(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := st.CreateSchedule(ctx, pendingSchedule(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if ok, err := st.MarkScheduleCancelled(ctx, "b", time.Now()); err != nil || !ok {
		t.Fatalf("cancel b: ok=%v err=%v", ok, err)
	}

	active, err := st.FindActiveSchedules(ctx)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	for _, sc := range active {
		if sc.ID == "b" {
			t.Fatal("cancelled schedule still listed as active")
		}
	}
}

func TestMarkSentCompareAndSet(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := st.MarkScheduleSent(ctx, "s1", now)
	if err != nil || !ok {
		t.Fatalf("first mark sent: ok=%v err=%v", ok, err)
	}

	got, _ := st.FindSchedule(ctx, "s1")
	if got.Status != StatusSent || got.Active {
		t.Fatalf("after sent: %+v", got)
	}

	// Second transition must lose the CAS.
	ok, err = st.MarkScheduleSent(ctx, "s1", now)
	if err != nil {
		t.Fatalf("second mark sent: %v", err)
	}
	if ok {
		t.Fatal("sent transition applied twice")
	}

	// Cancelling a sent schedule must also lose.
	ok, err = st.MarkScheduleCancelled(ctx, "s1", now)
	if err != nil {
		t.Fatalf("cancel sent: %v", err)
	}
	if ok {
		t.Fatal("cancel overwrote a sent schedule")
	}

	// Unknown id: no error, not eligible.
	ok, err = st.MarkScheduleSent(ctx, "nope", now)
	if err != nil || ok {
		t.Fatalf("unknown id: ok=%v err=%v", ok, err)
	}
}

func TestCancelThenSentLoses(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := st.MarkScheduleCancelled(ctx, "s1", now); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if ok, err := st.MarkScheduleSent(ctx, "s1", now); err != nil || ok {
		t.Fatalf("sent after cancel: ok=%v err=%v", ok, err)
	}
	got, _ := st.FindSchedule(ctx, "s1")
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestDeactivateSchedule(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeactivateSchedule(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := st.FindSchedule(ctx, "s1")
	if got.Active || got.Status != StatusPending {
		t.Fatalf("after deactivate: %+v", got)
	}
	if err := st.DeactivateSchedule(ctx, "nope", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteSchedule(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchedule(ctx, pendingSchedule("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeleteSchedule(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.FindSchedule(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := st.DeleteSchedule(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}
}

func TestReadModels(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	u := User{ID: "u1", FirstName: "Ava", LastName: "Siregar", Email: "ava@example.com"}
	v := Vehicle{ID: "v1", UserID: "u1", Make: "Toyota", Model: "Avanza", Year: 2019, LicensePlate: "B 1234 XYZ"}
	vs := VehicleService{
		ID: "vs1", UserID: "u1", VehicleID: "v1",
		ServiceType:     "oil change",
		ServiceDate:     time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		NextServiceDate: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Cost:            85,
	}

	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := st.CreateVehicle(ctx, v); err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	if err := st.CreateVehicleService(ctx, vs); err != nil {
		t.Fatalf("create service: %v", err)
	}

	gu, err := st.FindUser(ctx, "u1")
	if err != nil || gu.Email != "ava@example.com" {
		t.Fatalf("find user: %+v err=%v", gu, err)
	}
	gv, err := st.FindVehicle(ctx, "v1")
	if err != nil || gv.LicensePlate != "B 1234 XYZ" {
		t.Fatalf("find vehicle: %+v err=%v", gv, err)
	}
	gs, err := st.FindVehicleService(ctx, "vs1")
	if err != nil {
		t.Fatalf("find service: %v", err)
	}
	if !gs.NextServiceDate.Equal(vs.NextServiceDate) {
		t.Fatalf("next service date = %v, want %v", gs.NextServiceDate, vs.NextServiceDate)
	}

	if _, err := st.FindUser(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
