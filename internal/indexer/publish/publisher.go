// Package publish notifies external systems after a segment has been
// committed. Notification is best effort: a failed sink never undoes or
// fails a build.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

// Event describes a committed build.
type Event struct {
	BuildID     string    `json:"build_id"`
	SegmentPath string    `json:"segment_path"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Skipped     int       `json:"skipped"`
	Bytes       int64     `json:"bytes"`
	Checksum    uint32    `json:"checksum"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	CommittedAt time.Time `json:"committed_at"`
}

// Sink is a destination notified of committed builds.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// Publisher fans an event out to every sink, each call bounded by a
// timeout and retried with backoff.
type Publisher struct {
	sinks   []Sink
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewPublisher(cfg config.PublishConfig, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks:   sinks,
		timeout: cfg.Timeout,
		retry:   resilience.RetryConfig{MaxAttempts: cfg.MaxAttempts},
		logger:  logger.WithComponent("publisher"),
	}
}

func (p *Publisher) Sinks() []Sink { return p.sinks }

// Publish delivers event to every sink. All sinks are attempted; the
// failures are joined into the returned error.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	log := logger.FromContext(ctx).With("component", "publisher")
	var errs []error
	for _, sink := range p.sinks {
		name := sink.Name()
		err := resilience.Retry(ctx, "publish "+name, p.retry, func(ctx context.Context) error {
			return resilience.WithTimeout(ctx, p.timeout, name, func(ctx context.Context) error {
				return sink.Publish(ctx, event)
			})
		})
		if err != nil {
			var te *resilience.TimeoutError
			log.Warn("build notification failed", "sink", name, "timed_out", errors.As(err, &te), "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
			continue
		}
		log.Debug("build notification sent", "sink", name)
	}
	return errors.Join(errs...)
}

// Close releases every sink that holds a connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, sink := range p.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing sink %s: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a Publisher with every sink cfg enables. A sink whose
// backend cannot be reached is left out with a warning so an unavailable
// notification target never blocks indexing.
func FromConfig(ctx context.Context, cfg *config.Config) *Publisher {
	log := logger.WithComponent("publisher")
	var sinks []Sink
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, NewKafkaSink(cfg.Kafka))
	}
	if cfg.Redis.Addr != "" {
		sink, err := NewRedisSink(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis sink disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Postgres.Host != "" {
		sink, err := NewPostgresSink(ctx, cfg.Postgres)
		if err != nil {
			log.Warn("postgres sink disabled", "host", cfg.Postgres.Host, "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	return NewPublisher(cfg.Publish, sinks...)
}
