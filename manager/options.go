package manager

import (
	"log/slog"
	"time"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the time source used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Sink receives the outbound events of a run in order. It is called on the
// goroutine running the task and must not retain the event's maps.
type Sink func(a2a.Outbound)

// RunOptions contains configuration for a single run.
type RunOptions struct {
	// Sink receives outbound events. Nil discards them.
	Sink Sink

	// CorrelationID is the inbound request id. It is used to derive a caller
	// id when the task has no context id.
	CorrelationID string
}

// RunOption is a functional option for RunTask.
type RunOption func(*RunOptions)

// WithSink streams the run's outbound events to s.
func WithSink(s Sink) RunOption {
	return func(o *RunOptions) {
		o.Sink = s
	}
}

// WithCorrelationID sets the inbound request id.
func WithCorrelationID(id string) RunOption {
	return func(o *RunOptions) {
		o.CorrelationID = id
	}
}

// ApplyRunOptions applies opts to a zero RunOptions.
func ApplyRunOptions(opts ...RunOption) *RunOptions {
	o := &RunOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *RunOptions) emit(out a2a.Outbound) {
	if o.Sink != nil {
		o.Sink(out)
	}
}
