package agui

import (
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
// It matches the AG-UI wire format and is transport-agnostic.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// PreparedInput is a validated run request.
type PreparedInput struct {
	ThreadID string
	RunID    string

	// Message is the most recent user message. It becomes the task's initial
	// message; the thread id is used as the task's context id.
	Message a2a.Message
}

var (
	// ErrNoMessages is returned when the input contains no messages.
	ErrNoMessages = errors.New("no messages provided")

	// ErrNoUserMessage is returned when no message was authored by the user.
	ErrNoUserMessage = errors.New("no user message provided")
)

// Prepare validates the input and picks the message to send. Empty thread
// and run ids are generated.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	messages := ToA2AMessages(r.Messages)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	msg, ok := a2a.LastUserMessage(messages)
	if !ok {
		return nil, ErrNoUserMessage
	}

	threadID, runID := r.ThreadID, r.RunID
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &PreparedInput{
		ThreadID: threadID,
		RunID:    runID,
		Message:  msg,
	}, nil
}
