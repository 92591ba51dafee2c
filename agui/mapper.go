package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// Mapper converts a task's outbound stream to AG-UI events.
//
// Create a new Mapper for each run using NewMapper. The Mapper is not
// safe for concurrent use - each goroutine should have its own Mapper.
type Mapper struct {
	threadID string
	runID    string

	messageID string
	open      bool // a text message has started and not ended
	done      bool // RUN_FINISHED or RUN_ERROR was produced
}

// NewMapper creates a new Mapper for a single run.
// The threadID and runID are used in lifecycle events (RUN_STARTED, RUN_FINISHED).
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{
		threadID:  threadID,
		runID:     runID,
		messageID: events.GenerateMessageID(),
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(msg string) events.Event {
	if msg == "" {
		msg = "unknown error"
	}
	return events.NewRunErrorEvent(msg)
}

// Done reports whether a terminal run event has been produced.
func (m *Mapper) Done() bool {
	return m.done
}

// Map converts one outbound item. Answer chunks become a single text
// message; the final status becomes RUN_FINISHED or RUN_ERROR. Nothing is
// produced after the run is done.
func (m *Mapper) Map(out a2a.Outbound) []events.Event {
	if m.done {
		return nil
	}
	if out.Err != nil {
		return m.finish(m.RunError(out.Err.Message))
	}

	switch ev := out.Event.(type) {
	case a2a.TaskArtifactUpdateEvent:
		if ev.LastChunk {
			return m.closeMessage()
		}
		text := ev.Artifact.Text()
		if text == "" {
			return nil
		}
		var result []events.Event
		if !m.open {
			m.open = true
			result = append(result, events.NewTextMessageStartEvent(m.messageID, events.WithRole(RoleAssistant)))
		}
		return append(result, events.NewTextMessageContentEvent(m.messageID, text))

	case a2a.TaskStatusUpdateEvent:
		if !ev.Final {
			return nil
		}
		switch ev.Status {
		case a2a.TaskStatusCompleted:
			return m.finish(m.RunFinished())
		case a2a.TaskStatusCanceled:
			return m.finish(m.RunError("task canceled"))
		default:
			msg, _ := ev.Metadata["error"].(string)
			return m.finish(m.RunError(msg))
		}
	}
	return nil
}

func (m *Mapper) closeMessage() []events.Event {
	if !m.open {
		return nil
	}
	m.open = false
	return []events.Event{events.NewTextMessageEndEvent(m.messageID)}
}

func (m *Mapper) finish(last events.Event) []events.Event {
	result := m.closeMessage()
	m.done = true
	return append(result, last)
}
