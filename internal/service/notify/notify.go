// Package notify fans operator notifications out to sinks through the job queue.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/cache"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/queue"
)

const (
	// JobType is the queue message type for outgoing notifications.
	JobType = "notify"

	DefaultRSIAlertTTL = 10 * time.Minute
	rsiAlertPrefix     = "rsi_alert"
)

// Sink delivers a notification to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, n models.Notification) error
}

// Service implements repository.Notifier. Notifications are enqueued and
// delivered by Job; extreme-RSI alerts are throttled per symbol.
type Service struct {
	queue    queue.Queue
	cache    cache.Service
	sinks    []Sink
	alertTTL time.Duration
	clock    repository.Clock
	l        *logger.Logger
}

var _ repository.Notifier = (*Service)(nil)

type Option func(*Service)

func WithQueue(q queue.Queue) Option {
	return func(s *Service) { s.queue = q }
}

// WithThrottle sets the cache used for the extreme-RSI lock and its TTL.
func WithThrottle(c cache.Service, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.alertTTL = ttl
		}
	}
}

func WithClock(c repository.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.l = l }
}

func New(sinks []Sink, opts ...Option) *Service {
	s := &Service{
		sinks:    sinks,
		alertTTL: DefaultRSIAlertTTL,
		clock:    repository.SystemClock{},
		l:        logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Job returns the queue job that performs delivery.
func (s *Service) Job() queue.Job {
	return &Job{sinks: s.sinks, l: s.l}
}

func (s *Service) Notify(ctx context.Context, n models.Notification) error {
	if n.At.IsZero() {
		n.At = s.clock.Now()
	}
	if n.Kind == models.NotifyRSIExtreme && s.cache != nil {
		ok, err := s.cache.TryLock(ctx, cache.SymbolKey(rsiAlertPrefix, n.Symbol), s.alertTTL)
		if err != nil {
			s.l.Warn("rsi alert throttle unavailable", logger.String("symbol", n.Symbol), logger.Error(err))
		} else if !ok {
			s.l.Debug("rsi alert throttled", logger.String("symbol", n.Symbol))
			return nil
		}
	}
	if s.queue == nil {
		return deliver(ctx, s.sinks, n)
	}
	if err := s.queue.Enqueue(ctx, JobType, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Job delivers queued notifications. A failing sink makes the whole message
// retry, so sinks should tolerate duplicates.
type Job struct {
	sinks []Sink
	l     *logger.Logger
}

func (j *Job) Name() string { return "notification-delivery" }
func (j *Job) Type() string { return JobType }

func (j *Job) Handle(ctx context.Context, payload json.RawMessage) error {
	n, err := queue.Decode[models.Notification](payload)
	if err != nil {
		return err
	}
	return deliver(ctx, j.sinks, n)
}

func deliver(ctx context.Context, sinks []Sink, n models.Notification) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	l *logger.Logger
}

func NewLogSink(l *logger.Logger) *LogSink { return &LogSink{l: l} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n models.Notification) error {
	fields := []logger.Field{logger.String("kind", string(n.Kind)), logger.Time("at", n.At)}
	if n.Symbol != "" {
		fields = append(fields, logger.String("symbol", n.Symbol))
	}
	if n.Kind == models.NotifyError {
		s.l.Error(n.Text, fields...)
		return nil
	}
	s.l.Info(n.Text, fields...)
	return nil
}
