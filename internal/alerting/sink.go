// Package alerting delivers alert log entries to notification channels.
package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
)

// Sink receives every alert raised by the monitor.
type Sink interface {
	Publish(ctx context.Context, entry alertlog.Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry alertlog.Entry) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, entry alertlog.Entry) error {
	return f(ctx, entry)
}

// MultiSink fans an entry out to every sink and joins their errors.
type MultiSink struct {
	sinks []Sink
}

// Multi builds a MultiSink, skipping nil sinks.
func Multi(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len reports the number of wrapped sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Publish delivers entry to all sinks even when some fail.
func (m *MultiSink) Publish(ctx context.Context, entry alertlog.Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConsoleSink writes alerts to the operational log.
type ConsoleSink struct {
	logger zerolog.Logger
}

// NewConsoleSink builds a ConsoleSink.
func NewConsoleSink(logger zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger.With().Str("component", "alert_console").Logger()}
}

// Publish logs entry at a level matching its severity.
func (c *ConsoleSink) Publish(_ context.Context, entry alertlog.Entry) error {
	var ev *zerolog.Event
	switch entry.Severity {
	case alertlog.SeverityHigh:
		ev = c.logger.Error()
	case alertlog.SeverityLow:
		ev = c.logger.Info()
	default:
		ev = c.logger.Warn()
	}
	ev.Str("alert_type", entry.Type).
		Str("severity", string(entry.Severity)).
		Interface("data", entry.Data).
		Msg("alert raised")
	return nil
}

// subject picks the entity an alert is about, used for deduplication and rendering.
func subject(entry alertlog.Entry) string {
	for _, key := range []string{"keeper", "vault", "provider", "subject"} {
		if v, ok := entry.Data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

var (
	_ Sink = (*MultiSink)(nil)
	_ Sink = (*ConsoleSink)(nil)
	_ Sink = SinkFunc(nil)
)
