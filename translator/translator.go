// Package translator maps between A2A tasks and upstream chat requests and
// events.
//
// A Translator holds no state of its own. When it is given a session cache it
// uses it to remember which caller started each upstream conversation, so a
// follow-up turn is sent as the same upstream user.
package translator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/session"
)

// ErrNoUserMessage is returned when a task has no user-authored message.
var ErrNoUserMessage = errors.New("translator: no user message")

// AnonymousCaller is the caller id used when nothing better is known.
const AnonymousCaller = "anonymous"

// DerivedCallerPrefix prefixes caller ids derived from a correlation id.
const DerivedCallerPrefix = "a2a-user-"

// DefaultArtifactName names the artifact produced by a run.
const DefaultArtifactName = "Dify Response"

// Metadata keys set on outbound events.
const (
	MetadataAppend    = "append"
	MetadataMessageID = "message_id"
	MetadataEventType = "event_type"
)

// Source tells which rule ResolveCaller applied.
type Source string

const (
	SourceCache     Source = "cache"
	SourceContext   Source = "context"
	SourceDerived   Source = "derived"
	SourceAnonymous Source = "anonymous"
)

// Translator converts tasks to upstream requests and upstream events to
// outbound A2A events.
type Translator struct {
	cache    session.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithCache enables caller affinity through c.
func WithCache(c session.Cache) Option {
	return func(t *Translator) {
		t.cache = c
	}
}

// WithCacheTTL sets how long conversation mappings are kept.
func WithCacheTTL(d time.Duration) Option {
	return func(t *Translator) {
		t.cacheTTL = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = l
	}
}

// New creates a Translator.
func New(opts ...Option) *Translator {
	t := &Translator{
		cacheTTL: session.DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToUpstreamRequest builds the upstream request for a task from its most
// recent user message.
func (t *Translator) ToUpstreamRequest(ctx context.Context, task *a2a.Task, correlationID string) (gateway.ChatRequest, error) {
	msg, ok := a2a.LastUserMessage(task.History)
	if !ok {
		return gateway.ChatRequest{}, ErrNoUserMessage
	}

	req := gateway.ChatRequest{
		Query:          msg.Text(),
		ConversationID: task.ConversationID(),
		Inputs:         map[string]any{},
	}
	for _, p := range msg.Parts {
		switch v := p.(type) {
		case a2a.TextPart:
		case a2a.FilePart:
			if v.URI == "" {
				t.logger.Debug("skipping inline file part", "task_id", task.ID, "name", v.Name)
				continue
			}
			req.Files = append(req.Files, gateway.File{
				Type:           FileType(v.MimeType),
				TransferMethod: "remote_url",
				URL:            v.URI,
			})
		case a2a.DataPart:
			maps.Copy(req.Inputs, v.Data)
		}
	}

	req.User, _ = t.ResolveCaller(ctx, task.ContextID, req.ConversationID, correlationID)
	return req, nil
}

// FileType maps a media type to the upstream file type.
func FileType(mimeType string) string {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image", "audio", "video":
		return major
	case "text", "application":
		return "document"
	default:
		return "custom"
	}
}

// ResolveCaller picks the upstream user id. A cached mapping for the
// conversation wins, then the context id, then an id derived from the
// correlation id, then AnonymousCaller.
func (t *Translator) ResolveCaller(ctx context.Context, contextID, conversationID, correlationID string) (string, Source) {
	if t.cache != nil && conversationID != "" {
		v, ok, err := t.cache.Get(ctx, session.ConversationKey(conversationID))
		switch {
		case err != nil:
			t.logger.Warn("session cache lookup failed", "conversation_id", conversationID, "error", err)
		case ok && v != "":
			return v, SourceCache
		}
	}
	if contextID != "" {
		return contextID, SourceContext
	}
	if correlationID != "" {
		return DeriveCallerID(correlationID), SourceDerived
	}
	return AnonymousCaller, SourceAnonymous
}

// DeriveCallerID returns a stable caller id for id: the prefix followed by
// the first 8 hex digits of its MD5.
func DeriveCallerID(id string) string {
	sum := md5.Sum([]byte(id))
	return DerivedCallerPrefix + hex.EncodeToString(sum[:])[:8]
}

// RecordContinuation remembers that conversationID belongs to callerID.
func (t *Translator) RecordContinuation(ctx context.Context, conversationID, callerID string) {
	if t.cache == nil || conversationID == "" || callerID == "" {
		return
	}
	if err := t.cache.Set(ctx, session.ConversationKey(conversationID), callerID, t.cacheTTL); err != nil {
		t.logger.Warn("session cache save failed", "conversation_id", conversationID, "error", err)
		return
	}
	t.logger.Debug("saved conversation mapping", "conversation_id", conversationID, "user", callerID)
}

// FromUpstreamEvent maps an upstream event to an outbound item. It returns
// nil for events that have no outbound form.
func (t *Translator) FromUpstreamEvent(ev gateway.UpstreamEvent, taskID, contextID, artifactID string) *a2a.Outbound {
	switch ev.Kind {
	case gateway.KindMessageChunk:
		art := a2a.Artifact{
			ArtifactID: artifactID,
			Name:       DefaultArtifactName,
			Parts:      []a2a.Part{a2a.NewTextPart(ev.Answer)},
			Metadata:   map[string]any{MetadataAppend: true},
		}
		if ev.ConversationID != "" {
			art.Metadata[a2a.MetadataConversationID] = ev.ConversationID
		}
		if ev.CreatedAt > 0 {
			art.CreatedAt = time.Unix(ev.CreatedAt, 0).UTC()
		}
		up := a2a.NewArtifactUpdate(taskID, contextID, art)
		up.Append = true
		return &a2a.Outbound{Event: up}

	case gateway.KindMessageEnd:
		up := a2a.NewStatusUpdate(taskID, contextID, a2a.TaskStatusCompleted, true)
		up.Metadata = map[string]any{MetadataMessageID: ev.MessageID}
		if ev.ConversationID != "" {
			up.Metadata[a2a.MetadataConversationID] = ev.ConversationID
		}
		return &a2a.Outbound{Event: up}

	case gateway.KindError:
		return &a2a.Outbound{Err: UpstreamError(ev)}

	default:
		t.logger.Debug("suppressing upstream event", "task_id", taskID, "event", ev.Name, "kind", ev.Kind)
		return nil
	}
}

// UpstreamError converts an upstream error event to a JSON-RPC error.
func UpstreamError(ev gateway.UpstreamEvent) *a2a.Error {
	msg := ev.Message
	if msg == "" {
		msg = "Unknown error"
	}
	data := map[string]any{}
	if ev.Status != 0 {
		data["status"] = ev.Status
	}
	if ev.Code != "" {
		data["code"] = ev.Code
	}
	e := a2a.NewError(a2a.CodeServerError, msg)
	if len(data) > 0 {
		e.Data = data
	}
	return e
}
