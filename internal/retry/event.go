package retry

import (
	"log/slog"
	"time"
)

// EventType identifies the kind of event occurring during retry execution.
type EventType string

const (
	// EventAttemptFailed fires after a failed attempt.
	EventAttemptFailed EventType = "attempt_failed"

	// EventRetrying fires before sleeping between attempts.
	EventRetrying EventType = "retrying"

	// EventExhausted fires when all retry attempts are exhausted.
	EventExhausted EventType = "exhausted"
)

// Event represents an observable occurrence during retry execution.
type Event struct {
	Type EventType

	// Attempt is the current attempt number (1-indexed).
	Attempt int

	MaxAttempts int

	// Error contains the error from a failed attempt.
	Error error

	// Delay is the duration before the next attempt (for EventRetrying).
	Delay time.Duration

	// Retryable indicates whether the error was classified as transient.
	Retryable bool

	Timestamp time.Time
}

// Observer receives retry events. It is called synchronously.
type Observer func(Event)

// LogObserver returns an Observer that writes events to logger.
func LogObserver(logger *slog.Logger, msg string) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e Event) {
		attrs := []any{
			"event", e.Type,
			"attempt", e.Attempt,
			"max_attempts", e.MaxAttempts,
		}
		if e.Error != nil {
			attrs = append(attrs, "error", e.Error)
		}
		switch e.Type {
		case EventRetrying:
			logger.Warn(msg, append(attrs, "delay_ms", e.Delay.Milliseconds())...)
		case EventExhausted:
			logger.Error(msg, attrs...)
		default:
			logger.Debug(msg, append(attrs, "retryable", e.Retryable)...)
		}
	}
}

func emit(obs Observer, event Event) {
	if obs == nil {
		return
	}
	event.Timestamp = time.Now()
	obs(event)
}
