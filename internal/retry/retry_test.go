package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// mockNetError simulates a network error with timeout/temporary flags.
type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.timeout }

var _ net.Error = (*mockNetError)(nil)

// mockAPIError simulates an SDK error with a status code.
type mockAPIError struct {
	code int
}

func (e *mockAPIError) Error() string   { return fmt.Sprintf("api error %d", e.code) }
func (e *mockAPIError) StatusCode() int { return e.code }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
		assert.Equal(t, 10*time.Second, cfg.MaxDelay)
		assert.Equal(t, 2.0, cfg.Multiplier)
		assert.Equal(t, 0.1, cfg.Jitter)
	})

	t.Run("disabled", func(t *testing.T) {
		assert.Equal(t, 1, Disabled().MaxAttempts)
	})

	t.Run("with attempts", func(t *testing.T) {
		assert.Equal(t, 5, DefaultConfig().WithAttempts(5).MaxAttempts)
		assert.Equal(t, 1, DefaultConfig().WithAttempts(0).MaxAttempts)
	})

	t.Run("exponential delay", func(t *testing.T) {
		cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
		assert.Equal(t, 100*time.Millisecond, cfg.Delay(0))
		assert.Equal(t, 200*time.Millisecond, cfg.Delay(1))
		assert.Equal(t, 400*time.Millisecond, cfg.Delay(2))
		assert.Equal(t, time.Second, cfg.Delay(10))
		assert.Equal(t, 100*time.Millisecond, cfg.Delay(-1))
	})

	t.Run("jitter stays in range", func(t *testing.T) {
		cfg := Config{InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1, Jitter: 0.1}
		for range 50 {
			d := cfg.Delay(0)
			assert.GreaterOrEqual(t, d, 900*time.Millisecond)
			assert.LessOrEqual(t, d, 1100*time.Millisecond)
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"categorized transient", gateway.NewTransientError("busy", 503, nil), true},
		{"categorized permanent", gateway.NewPermanentError("unauthorized", 401, nil), false},
		{"categorized user input", gateway.NewUserInputError("bad", 400, nil), false},
		{"wrapped categorized", fmt.Errorf("open: %w", gateway.NewTransientError("x", 502, nil)), true},
		{"status 429", &mockAPIError{code: 429}, true},
		{"status 503", &mockAPIError{code: 503}, true},
		{"status 400", &mockAPIError{code: 400}, false},
		{"net timeout", &mockNetError{msg: "i/o", timeout: true}, true},
		{"url timeout", &url.Error{Op: "Post", URL: "http://x", Err: &mockNetError{msg: "i/o", timeout: true}}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"temporary dns", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, true},
		{"permanent dns", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"message pattern", errors.New("upstream: Service Unavailable"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("open: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("invalid api key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestDoSuccess(t *testing.T) {
	callCount := 0
	result, err := Do(context.Background(), DefaultConfig(), func() (string, error) {
		callCount++
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, callCount)
}

func TestDoRetryOnTransientError(t *testing.T) {
	callCount := 0
	result, err := Do(context.Background(), fastConfig(3), func() (string, error) {
		callCount++
		if callCount < 3 {
			return "", gateway.NewTransientError("busy", 503, nil)
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, callCount)
}

func TestDoNoRetryOnPermanentError(t *testing.T) {
	callCount := 0
	permanentErr := gateway.NewPermanentError("unauthorized", 401, nil)

	_, err := Do(context.Background(), fastConfig(3), func() (string, error) {
		callCount++
		return "", permanentErr
	})

	assert.Equal(t, permanentErr, err)
	assert.Equal(t, 1, callCount)
}

func TestDoExhaustsRetries(t *testing.T) {
	callCount := 0
	transientErr := &mockNetError{msg: "timeout", timeout: true}

	_, err := Do(context.Background(), fastConfig(3), func() (string, error) {
		callCount++
		return "", transientErr
	})

	assert.Equal(t, transientErr, err)
	assert.Equal(t, 3, callCount)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	callCount := 0
	_, _ = Do(context.Background(), Config{}, func() (int, error) {
		callCount++
		return 0, errors.New("x")
	})
	assert.Equal(t, 1, callCount)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1.0}

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, func() (string, error) {
		callCount++
		return "", &mockNetError{msg: "timeout", timeout: true}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "1")
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	var events []Event
	start := time.Now()
	_, _ = DoWithObserver(context.Background(), cfg, func(e Event) { events = append(events, e) }, func() (int, error) {
		return 0, gateway.NewStatusError("rate limited", 429, h, nil)
	})

	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	require.NotEmpty(t, events)
	assert.Equal(t, EventRetrying, events[1].Type)
	assert.Equal(t, time.Second, events[1].Delay)
}

func TestDoWithObserver(t *testing.T) {
	var events []Event
	_, err := DoWithObserver(context.Background(), fastConfig(2), func(e Event) { events = append(events, e) }, func() (int, error) {
		return 0, gateway.NewTransientError("busy", 503, nil)
	})
	require.Error(t, err)

	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []EventType{EventAttemptFailed, EventRetrying, EventAttemptFailed, EventExhausted}, types)
	assert.True(t, events[0].Retryable)
	assert.Equal(t, 2, events[3].MaxAttempts)
	assert.False(t, events[3].Timestamp.IsZero())
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, _ = DoWithObserver(context.Background(), fastConfig(2), LogObserver(logger, "dify connect"), func() (int, error) {
		return 0, gateway.NewTransientError("busy", 503, nil)
	})

	out := buf.String()
	assert.Contains(t, out, "dify connect")
	assert.Contains(t, out, "event=retrying")
	assert.Contains(t, out, "event=exhausted")
	assert.Contains(t, out, "level=ERROR")
}
