// Package notify delivers reminder emails.
//
// The engine talks to a Service, which wraps a Mailer with a token-bucket
// rate limit and structured logging. The only production Mailer is the
// SendGrid adapter; tests inject fakes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	logx "pitstop/pkg/logx"
)

// ErrDisabled is returned when sending is turned off by config.
var ErrDisabled = errors.New("mailer disabled")

// Message is one outbound email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer sends a message and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SendError wraps a delivery failure. It is non-fatal to the process; the
// dispatcher logs it and applies the configured failure policy.
type SendError struct {
	To  string
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("send to %s: %v", e.To, e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

type Config struct {
	Enabled       bool
	RatePerMinute int
}

// Service is the rate-limited sending front the engine uses.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	mailer Mailer
	log    logx.Logger
}

func NewService(cfg Config, mailer Mailer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{mailer: mailer, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps config at runtime (hot reload path).
func (s *Service) Apply(cfg Config) {
	rpm := cfg.RatePerMinute
	if rpm <= 0 {
		rpm = 30
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	s.mu.Unlock()
}

// Send delivers msg through the mailer, honoring the rate limit.
func (s *Service) Send(ctx context.Context, msg Message) (string, error) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	limiter := s.limiter
	s.mu.Unlock()

	if !enabled {
		return "", &SendError{To: msg.To, Err: ErrDisabled}
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", &SendError{To: msg.To, Err: errors.New("empty recipient")}
	}
	if err := limiter.Wait(ctx); err != nil {
		return "", &SendError{To: msg.To, Err: err}
	}

	id, err := s.mailer.Send(ctx, msg)
	if err != nil {
		return "", &SendError{To: msg.To, Err: err}
	}
	s.log.Info("reminder mail sent",
		logx.String("to", msg.To),
		logx.String("subject", msg.Subject),
		logx.String("message_id", id))
	return id, nil
}
