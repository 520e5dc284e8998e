package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "pitstop/pkg/logx"
)

// Callback runs when a registered expression matches the current time.
type Callback func(ctx context.Context)

type entry struct {
	id   string
	spec string
	loc  *time.Location
	next time.Time
	cb   Callback
}

// Registry holds one live one-shot timer per registered schedule id.
//
// Instead of a goroutine per schedule, a single sweep loop evaluates every
// parsed expression against the injected clock at tick granularity and
// removes an entry the moment it matches. Callbacks always run on their own
// goroutine so store or mailer I/O can never stall the sweep.
type Registry struct {
	mu      sync.Mutex
	log     logx.Logger
	clock   Clock
	tick    time.Duration
	entries map[string]*entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRegistry(tick time.Duration, clock Clock, log logx.Logger) *Registry {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		log:     log,
		clock:   clock,
		tick:    tick,
		entries: map[string]*entry{},
	}
}

// Register arms a timer for id. Registering an id that is already live is a
// no-op, which is what makes repeated reconciliation passes safe.
func (r *Registry) Register(id, spec, timezone string, cb Callback) error {
	sched, err := ParseExpression(spec)
	if err != nil {
		return err
	}
	loc, err := loadLocation(timezone)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return nil
	}
	now := r.clock.Now().In(loc)
	r.entries[id] = &entry{
		id:   id,
		spec: spec,
		loc:  loc,
		next: sched.Next(now),
		cb:   cb,
	}
	r.log.Debug("timer registered",
		logx.String("id", id),
		logx.String("spec", spec),
		logx.Time("next", r.entries[id].next))
	return nil
}

// Stop disarms and removes the timer for id. Unknown ids are a no-op.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.log.Debug("timer stopped", logx.String("id", id))
	return true
}

// StopAll disarms every timer. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	n := len(r.entries)
	r.entries = map[string]*entry{}
	r.mu.Unlock()
	if n > 0 {
		r.log.Debug("all timers stopped", logx.Int("count", n))
	}
}

// Len reports the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether id holds a live timer.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Start launches the sweep loop. It returns immediately; the loop runs
// until Shutdown or ctx cancellation.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stopCh != nil {
		r.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-t.C:
				r.sweep(ctx, r.clock.Now())
			}
		}
	}()
	r.log.Info("timer registry started", logx.Duration("tick", r.tick))
}

// Shutdown stops the sweep loop and waits for it. Live entries are kept;
// call StopAll to clear them.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	stopCh := r.stopCh
	r.stopCh = nil
	r.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	r.wg.Wait()
}

// sweep fires every entry whose next match is due. Due entries are removed
// under the lock before their callbacks run, so a pattern can never fire
// twice even when the clock jumps across several ticks.
func (r *Registry) sweep(ctx context.Context, now time.Time) {
	var due []*entry
	r.mu.Lock()
	for id, e := range r.entries {
		if !e.next.After(now) {
			due = append(due, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range due {
		e := e
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("timer callback panicked",
						logx.String("id", e.id),
						logx.Any("panic", rec))
				}
			}()
			r.log.Debug("timer fired",
				logx.String("id", e.id),
				logx.String("spec", e.spec),
				logx.Time("at", now))
			e.cb(ctx)
		}()
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
