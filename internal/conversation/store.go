// Package conversation keeps per-conversation chat history for upstreams that
// are stateless, so a conversation id can be continued across requests.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// IDPrefix is the prefix of generated conversation ids.
const IDPrefix = "conv-"

// DefaultMaxTurns bounds the history kept per conversation.
const DefaultMaxTurns = 50

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role
	Content string
}

// NewID generates a conversation id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Store manages conversation histories keyed by conversation id.
type Store struct {
	mu       sync.RWMutex
	convs    map[string][]Turn
	maxTurns int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns caps the number of turns kept per conversation. Oldest turns
// are dropped first.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		s.maxTurns = n
	}
}

// NewStore creates an empty history store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		convs:    make(map[string][]Turn),
		maxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns a copy of all turns of a conversation.
func (s *Store) History(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.convs[id]
	result := make([]Turn, len(turns))
	copy(result, turns)
	return result
}

// Append adds turns to a conversation, creating it if needed.
func (s *Store) Append(id string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.convs[id], turns...)
	if s.maxTurns > 0 && len(all) > s.maxTurns {
		all = append([]Turn(nil), all[len(all)-s.maxTurns:]...)
	}
	s.convs[id] = all
}

// Len returns the number of turns in a conversation.
func (s *Store) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs[id])
}

// Delete removes a conversation.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
}

// Begin starts an exchange on a conversation. An empty id starts a new one.
func (s *Store) Begin(conversationID, query string) *Exchange {
	if conversationID == "" {
		conversationID = NewID()
	}
	return &Exchange{
		store:     s,
		id:        conversationID,
		query:     query,
		history:   s.History(conversationID),
		messageID: "msg-" + uuid.NewString(),
		taskID:    "run-" + uuid.NewString(),
	}
}

// Exchange is one question and its streamed answer. It turns provider deltas
// into upstream events and commits both turns when the answer ends.
// An Exchange is not safe for concurrent use.
type Exchange struct {
	store     *Store
	id        string
	query     string
	history   []Turn
	answer    strings.Builder
	messageID string
	taskID    string
}

// ConversationID returns the conversation being continued or started.
func (e *Exchange) ConversationID() string { return e.id }

// Prior returns the turns before this exchange.
func (e *Exchange) Prior() []Turn { return e.history }

// Query returns the question being asked.
func (e *Exchange) Query() string { return e.query }

// Chunk records a delta and returns the matching message-chunk event.
func (e *Exchange) Chunk(text string) gateway.UpstreamEvent {
	e.answer.WriteString(text)
	return gateway.UpstreamEvent{
		Kind:           gateway.KindMessageChunk,
		Name:           "message",
		TaskID:         e.taskID,
		MessageID:      e.messageID,
		ConversationID: e.id,
		Answer:         text,
		CreatedAt:      time.Now().Unix(),
	}
}

// End commits the exchange to history and returns the message-end event.
func (e *Exchange) End() gateway.UpstreamEvent {
	e.store.Append(e.id,
		Turn{Role: RoleUser, Content: e.query},
		Turn{Role: RoleAssistant, Content: e.answer.String()},
	)
	return gateway.UpstreamEvent{
		Kind:           gateway.KindMessageEnd,
		Name:           "message_end",
		TaskID:         e.taskID,
		MessageID:      e.messageID,
		ConversationID: e.id,
		CreatedAt:      time.Now().Unix(),
	}
}
