package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID prefixes for generated identifiers.
const (
	TaskIDPrefix     = "task-"
	ContextIDPrefix  = "ctx-"
	ArtifactIDPrefix = "artifact-"
)

// MetadataConversationID is the Task metadata key holding the upstream
// conversation id used to continue a conversation.
const MetadataConversationID = "dify_conversation_id"

// ErrUnknownPartType is returned when a part's "type" tag is not text, file or data.
var ErrUnknownPartType = errors.New("a2a: unknown part type")

// Role indicates the originator of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending       TaskStatus = "pending"
	TaskStatusRunning       TaskStatus = "running"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusFailed        TaskStatus = "failed"
	TaskStatusCanceled      TaskStatus = "canceled"
	TaskStatusInputRequired TaskStatus = "input-required"
	TaskStatusAuthRequired  TaskStatus = "auth-required"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusCanceled, TaskStatusInputRequired, TaskStatusAuthRequired:
		return true
	default:
		return false
	}
}

// Part type tags.
const (
	PartTypeText = "text"
	PartTypeFile = "file"
	PartTypeData = "data"
)

// Part is one segment of a message or artifact. The set of implementations is
// closed: TextPart, FilePart and DataPart.
type Part interface {
	partMarker()
	PartType() string
}

// TextPart carries plain text.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) partMarker()      {}
func (TextPart) PartType() string { return PartTypeText }

// MarshalJSON adds the "type" tag.
func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{PartTypeText, alias(p)})
}

// FilePart references a file either by URI or by inline base64 bytes.
type FilePart struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
}

func (FilePart) partMarker()      {}
func (FilePart) PartType() string { return PartTypeFile }

// MarshalJSON adds the "type" tag.
func (p FilePart) MarshalJSON() ([]byte, error) {
	type alias FilePart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{PartTypeFile, alias(p)})
}

// DataPart carries an open key-value payload.
type DataPart struct {
	Data map[string]any `json:"data"`
}

func (DataPart) partMarker()      {}
func (DataPart) PartType() string { return PartTypeData }

// MarshalJSON adds the "type" tag.
func (p DataPart) MarshalJSON() ([]byte, error) {
	type alias DataPart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{PartTypeData, alias(p)})
}

// NewTextPart creates a TextPart.
func NewTextPart(text string) TextPart {
	return TextPart{Text: text}
}

// NewFilePartWithURI creates a FilePart that references a remote file.
func NewFilePartWithURI(name, mimeType, uri string) FilePart {
	return FilePart{Name: name, MimeType: mimeType, URI: uri}
}

// NewFilePartWithBytes creates a FilePart with inline base64-encoded content.
func NewFilePartWithBytes(name, mimeType, bytes string) FilePart {
	return FilePart{Name: name, MimeType: mimeType, Bytes: bytes}
}

// NewDataPart creates a DataPart.
func NewDataPart(data map[string]any) DataPart {
	return DataPart{Data: data}
}

// UnmarshalPart decodes a single part using its "type" tag.
func UnmarshalPart(data []byte) (Part, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case PartTypeText:
		var p TextPart
		err := json.Unmarshal(data, &p)
		return p, err
	case PartTypeFile:
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.URI == "" && p.Bytes == "" {
			return nil, fmt.Errorf("a2a: file part %q needs a uri or bytes", p.Name)
		}
		return p, nil
	case PartTypeData:
		var p DataPart
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPartType, tag.Type)
	}
}

func unmarshalParts(raw []json.RawMessage) ([]Part, error) {
	parts := make([]Part, 0, len(raw))
	for i, r := range raw {
		p, err := UnmarshalPart(r)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case DataPart:
			out[i] = DataPart{Data: maps.Clone(v.Data)}
		case TextPart, FilePart:
			out[i] = v
		}
	}
	return out
}

// Message is one conversational turn.
type Message struct {
	Role      Role       `json:"role"`
	Parts     []Part     `json:"parts"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, parts ...Part) Message {
	now := time.Now().UTC()
	return Message{Role: role, Parts: parts, Timestamp: &now}
}

// UnmarshalJSON decodes Parts through UnmarshalPart.
func (m *Message) UnmarshalJSON(data []byte) error {
	type messageAlias Message
	var tmp struct {
		messageAlias
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	parts, err := unmarshalParts(tmp.Parts)
	if err != nil {
		return err
	}
	*m = Message(tmp.messageAlias)
	m.Parts = parts
	return nil
}

// Text returns the text of all TextParts joined by newlines.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (m Message) clone() Message {
	m.Parts = cloneParts(m.Parts)
	if m.Timestamp != nil {
		ts := *m.Timestamp
		m.Timestamp = &ts
	}
	return m
}

// LastUserMessage returns the most recent message authored by the user.
func LastUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return Message{}, false
}

// Artifact is a named result produced by a task run.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewArtifactID generates an artifact identifier.
func NewArtifactID() string {
	return ArtifactIDPrefix + uuid.NewString()
}

// NewArtifact creates an artifact with a generated id.
func NewArtifact(name string, parts ...Part) Artifact {
	return Artifact{
		ArtifactID: NewArtifactID(),
		Name:       name,
		Parts:      parts,
		Metadata:   map[string]any{},
		CreatedAt:  time.Now().UTC(),
	}
}

// UnmarshalJSON decodes Parts through UnmarshalPart.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	type artifactAlias Artifact
	var tmp struct {
		artifactAlias
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	parts, err := unmarshalParts(tmp.Parts)
	if err != nil {
		return err
	}
	*a = Artifact(tmp.artifactAlias)
	a.Parts = parts
	return nil
}

// Text returns the text of all TextParts concatenated.
func (a Artifact) Text() string {
	var b strings.Builder
	for _, p := range a.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func (a Artifact) clone() Artifact {
	a.Parts = cloneParts(a.Parts)
	a.Metadata = maps.Clone(a.Metadata)
	return a
}

// Task is a unit of conversational work.
type Task struct {
	ID          string         `json:"id"`
	ContextID   string         `json:"contextId"`
	Status      TaskStatus     `json:"status"`
	History     []Message      `json:"history"`
	Artifacts   []Artifact     `json:"artifacts"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewTaskID generates a task identifier.
func NewTaskID() string {
	return TaskIDPrefix + uuid.NewString()
}

// NewContextID generates a context identifier.
func NewContextID() string {
	return ContextIDPrefix + uuid.NewString()
}

// NewTask creates a pending task whose history holds the initial message.
func NewTask(id, contextID string, initial Message) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status:    TaskStatusPending,
		History:   []Message{initial},
		Artifacts: []Artifact{},
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConversationID returns the stored upstream conversation id, if any.
func (t *Task) ConversationID() string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	id, _ := t.Metadata[MetadataConversationID].(string)
	return id
}

// Clone returns a deep copy of the task. Values nested inside metadata maps
// are shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i, m := range t.History {
			c.History[i] = m.clone()
		}
	}
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			c.Artifacts[i] = a.clone()
		}
	}
	c.Metadata = maps.Clone(t.Metadata)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// Event type tags for outbound stream events.
const (
	EventTypeStatusUpdate   = "task_status_update"
	EventTypeArtifactUpdate = "task_artifact_update"
)

// Event is an outbound stream event: TaskStatusUpdateEvent or TaskArtifactUpdateEvent.
type Event interface {
	isA2AEvent()
	EventType() string
}

// TaskStatusUpdateEvent reports a task status change.
type TaskStatusUpdateEvent struct {
	Type      string         `json:"type"`
	TaskID    string         `json:"taskId"`
	Status    TaskStatus     `json:"status"`
	ContextID string         `json:"contextId"`
	Final     bool           `json:"final,omitempty"`
	Message   *Message       `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (TaskStatusUpdateEvent) isA2AEvent()       {}
func (TaskStatusUpdateEvent) EventType() string { return EventTypeStatusUpdate }

// NewStatusUpdate creates a status update event.
func NewStatusUpdate(taskID, contextID string, status TaskStatus, final bool) TaskStatusUpdateEvent {
	return TaskStatusUpdateEvent{
		Type:      EventTypeStatusUpdate,
		TaskID:    taskID,
		Status:    status,
		ContextID: contextID,
		Final:     final,
	}
}

// TaskArtifactUpdateEvent delivers an artifact or a chunk of one.
// Append marks a chunk that extends a previously announced artifact id.
type TaskArtifactUpdateEvent struct {
	Type      string   `json:"type"`
	TaskID    string   `json:"taskId"`
	Artifact  Artifact `json:"artifact"`
	ContextID string   `json:"contextId"`
	Append    bool     `json:"append,omitempty"`
	LastChunk bool     `json:"lastChunk,omitempty"`
}

func (TaskArtifactUpdateEvent) isA2AEvent()       {}
func (TaskArtifactUpdateEvent) EventType() string { return EventTypeArtifactUpdate }

// NewArtifactUpdate creates an artifact update event.
func NewArtifactUpdate(taskID, contextID string, artifact Artifact) TaskArtifactUpdateEvent {
	return TaskArtifactUpdateEvent{
		Type:      EventTypeArtifactUpdate,
		TaskID:    taskID,
		Artifact:  artifact,
		ContextID: contextID,
	}
}

// UnmarshalEvent decodes an outbound event using its "type" tag.
func UnmarshalEvent(data []byte) (Event, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case EventTypeStatusUpdate:
		var ev TaskStatusUpdateEvent
		err := json.Unmarshal(data, &ev)
		return ev, err
	case EventTypeArtifactUpdate:
		var ev TaskArtifactUpdateEvent
		err := json.Unmarshal(data, &ev)
		return ev, err
	default:
		return nil, fmt.Errorf("a2a: unknown event type %q", tag.Type)
	}
}

// Outbound is one item of a task's outbound stream. Exactly one of Event and
// Err is set.
type Outbound struct {
	Event Event
	Err   *Error
}
