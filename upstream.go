package gateway

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

// EventKind is the normalized kind of an upstream stream event.
type EventKind string

const (
	// KindMessageChunk carries a fragment of the answer text.
	KindMessageChunk EventKind = "message-chunk"
	// KindMessageEnd marks the end of the answer and carries the upstream message id.
	KindMessageEnd EventKind = "message-end"
	// KindError is an error reported inside the stream by the upstream.
	KindError EventKind = "error"
	// KindAgentThought is an agent reasoning step. It has no outbound equivalent.
	KindAgentThought EventKind = "agent-thought"
	// KindOther is any event the gateway does not interpret.
	KindOther EventKind = "other"
)

// ChatRequest is a provider-neutral streaming chat request.
type ChatRequest struct {
	Query          string
	ConversationID string
	Inputs         map[string]any
	User           string
	Files          []File
}

// File references a remote file attached to a chat request.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// UpstreamEvent is a single normalized event from an upstream stream.
// Name keeps the provider's raw event name for logging.
type UpstreamEvent struct {
	Kind           EventKind
	Name           string
	TaskID         string
	MessageID      string
	ConversationID string
	Answer         string
	CreatedAt      int64

	Thought     string
	Tool        string
	ToolInput   map[string]any
	Observation string

	Status  int
	Code    string
	Message string

	Extra map[string]any
}

// ChatClient opens streaming conversations against an upstream chat API.
// Connection and HTTP status failures are returned from Stream before any
// event is produced.
type ChatClient interface {
	Stream(ctx context.Context, req ChatRequest) (*Stream, error)
}

// Stopper is implemented by upstreams that can abort an in-flight generation.
type Stopper interface {
	Stop(ctx context.Context, upstreamTaskID, user string) error
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Stream is a single-use, lazily produced sequence of upstream events.
//
// The stream owns the underlying connection. It is released when the sequence
// is exhausted, when the consumer stops ranging early, when a terminal error is
// yielded, or when Close is called, whichever happens first.
type Stream struct {
	seq    iter.Seq2[UpstreamEvent, error]
	closer io.Closer

	used      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps a decoded event sequence and the resource it reads from.
// A non-nil error from seq must be the last pair it yields.
func NewStream(seq iter.Seq2[UpstreamEvent, error], closer io.Closer) *Stream {
	return &Stream{seq: seq, closer: closer}
}

// Events returns the event sequence. It can be ranged over once; a second
// range yields ErrStreamConsumed.
func (s *Stream) Events() iter.Seq2[UpstreamEvent, error] {
	return func(yield func(UpstreamEvent, error) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield(UpstreamEvent{}, ErrStreamConsumed)
			return
		}
		defer s.Close()

		for ev, err := range s.seq {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
