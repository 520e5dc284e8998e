package engine

import (
	"errors"
	"testing"
	"time"
)

func TestExpressionFromTime(t *testing.T) {
	t.Parallel()
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		loc  *time.Location
		want string
	}{
		{
			name: "utc morning",
			at:   time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "30 9 1 3 *",
		},
		{
			name: "midnight new year",
			at:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "0 0 1 1 *",
		},
		{
			name: "converted into schedule zone",
			// 2025-03-01T09:30 UTC is 16:30 the same day in Jakarta (UTC+7).
			at:   time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
			loc:  jakarta,
			want: "30 16 1 3 *",
		},
		{
			name: "end of month",
			at:   time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "59 23 31 12 *",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpressionFromTime(tt.at, tt.loc)
			if err != nil {
				t.Fatalf("ExpressionFromTime: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expression = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpressionFromTimeInvalid(t *testing.T) {
	t.Parallel()
	if _, err := ExpressionFromTime(time.Time{}, time.UTC); !errors.Is(err, ErrInvalidInstant) {
		t.Fatalf("zero time: want ErrInvalidInstant, got %v", err)
	}
	if _, err := ExpressionFromTime(time.Now(), nil); !errors.Is(err, ErrInvalidInstant) {
		t.Fatalf("nil location: want ErrInvalidInstant, got %v", err)
	}
}

// The expression must match exactly the target minute (in any year) and
// nothing that differs in minute, hour, day or month.
func TestExpressionMatchesOnlyTargetMinute(t *testing.T) {
	t.Parallel()
	target := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	expr, err := ExpressionFromTime(target, time.UTC)
	if err != nil {
		t.Fatalf("ExpressionFromTime: %v", err)
	}
	sched, err := ParseExpression(expr)
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}

	// Next from one minute before the target is the target itself.
	if got := sched.Next(target.Add(-time.Minute)); !got.Equal(target) {
		t.Fatalf("Next before target = %v, want %v", got, target)
	}

	// Next from the target minute is the same calendar minute a year later.
	nextYear := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if got := sched.Next(target); !got.Equal(nextYear) {
		t.Fatalf("Next after target = %v, want %v", got, nextYear)
	}

	// No instant that differs in minute/hour/day/month lies between.
	for _, near := range []time.Time{
		target.Add(time.Minute),
		target.Add(time.Hour),
		target.AddDate(0, 0, 1),
		target.AddDate(0, 1, 0),
	} {
		got := sched.Next(near)
		if got.Before(nextYear) {
			t.Fatalf("pattern matched %v after %v; want nothing before %v", got, near, nextYear)
		}
	}
}

func TestParseExpressionRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"", "not a cron", "@hourly", "* * * * * *"} {
		if _, err := ParseExpression(expr); err == nil {
			t.Fatalf("ParseExpression(%q): expected error", expr)
		}
	}
}
