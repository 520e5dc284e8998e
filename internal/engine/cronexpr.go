package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidInstant is returned when a target time cannot be translated
// into a fire expression.
var ErrInvalidInstant = errors.New("invalid target instant")

// fireParser is the 5-field parser (minute hour dom month dow) every
// expression in the system must satisfy. No seconds, no descriptors.
var fireParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ExpressionFromTime renders a target instant as the cron pattern that
// matches exactly that minute: "m h dom mon *". Fields are extracted in
// loc, which is also the zone the registry evaluates the pattern in.
//
// The pattern carries no year, so it would match the same calendar minute
// every year; callers rely on the schedule's Active flag to keep the fire
// one-shot.
func ExpressionFromTime(t time.Time, loc *time.Location) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero time", ErrInvalidInstant)
	}
	if loc == nil {
		return "", fmt.Errorf("%w: nil location", ErrInvalidInstant)
	}
	lt := t.In(loc)
	expr := fmt.Sprintf("%d %d %d %d *", lt.Minute(), lt.Hour(), lt.Day(), int(lt.Month()))
	// Round-trip through the parser so a bad instant can never produce an
	// expression the registry would later refuse.
	if _, err := fireParser.Parse(expr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInstant, err)
	}
	return expr, nil
}

// ParseExpression validates a stored fire expression and returns its
// schedule for evaluation.
func ParseExpression(expr string) (cron.Schedule, error) {
	sched, err := fireParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstant, err)
	}
	return sched, nil
}
