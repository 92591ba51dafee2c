// Package manager drives the task lifecycle.
//
// A task moves pending → running → completed, failed or canceled. RunTask
// performs the upstream call outside any store lock and re-reads the task
// around it. A run that finishes after the task was canceled leaves it
// canceled.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/store"
	"github.com/neocode24/dify-a2a-gateway/translator"
)

var (
	// ErrTaskNotFound indicates the task id is unknown.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates the task's status does not allow the
	// requested operation.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Manager runs tasks against an upstream chat client.
type Manager struct {
	store      store.TaskStore
	upstream   gateway.ChatClient
	translator *translator.Translator
	logger     *slog.Logger
	now        func() time.Time

	// stopTimeout bounds the upstream stop call made on cancel.
	stopTimeout time.Duration

	mu   sync.Mutex
	runs map[string]*activeRun
}

const defaultStopTimeout = 5 * time.Second

// activeRun tracks an in-flight run so CancelTask can abort it.
type activeRun struct {
	cancel         context.CancelFunc
	upstreamTaskID string
	user           string
}

// New creates a Manager. A nil translator gets the default one.
func New(s store.TaskStore, upstream gateway.ChatClient, tr *translator.Translator, opts ...Option) *Manager {
	if tr == nil {
		tr = translator.New()
	}
	m := &Manager{
		store:      s,
		upstream:   upstream,
		translator: tr,
		logger:     slog.Default(),
		now:        time.Now,
		runs:       make(map[string]*activeRun),

		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTask stores a new pending task. An empty contextID gets a generated
// one. When other tasks share the context, the newest upstream conversation
// id among them is copied into the new task so the conversation continues.
func (m *Manager) CreateTask(ctx context.Context, contextID string, initial a2a.Message) (*a2a.Task, error) {
	seeded := ""
	if contextID == "" {
		contextID = a2a.NewContextID()
	} else {
		seeded = m.latestConversation(ctx, contextID)
	}

	task := a2a.NewTask(a2a.NewTaskID(), contextID, initial)
	if seeded != "" {
		task.Metadata[a2a.MetadataConversationID] = seeded
		m.logger.Debug("continuing upstream conversation", "context_id", contextID, "conversation_id", seeded)
	}
	return m.create(ctx, task)
}

func (m *Manager) create(ctx context.Context, task *a2a.Task) (*a2a.Task, error) {
	now := m.now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	if err := m.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	m.logger.Info("task created", "task_id", task.ID, "context_id", task.ContextID)
	return task, nil
}

func (m *Manager) latestConversation(ctx context.Context, contextID string) string {
	filter := store.Filter{ContextID: contextID}
	for _, t := range m.store.List(ctx, filter, m.store.Count(ctx, filter), 0) {
		if id := t.ConversationID(); id != "" {
			return id
		}
	}
	return ""
}

// GetTask returns the task with the given id.
func (m *Manager) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	t, ok := m.store.Get(ctx, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// ListTasks returns one page of matching tasks, newest first, and the total
// number of matches.
func (m *Manager) ListTasks(ctx context.Context, filter store.Filter, limit, offset int) ([]*a2a.Task, int) {
	return m.store.List(ctx, filter, limit, offset), m.store.Count(ctx, filter)
}

// CancelTask cancels a pending or running task. A run in progress is aborted
// and, when the upstream supports it, told to stop generating.
func (m *Manager) CancelTask(ctx context.Context, id string) (*a2a.Task, error) {
	task, err := m.store.Mutate(ctx, id, func(t *a2a.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot cancel task in status: %s", ErrInvalidTransition, t.Status)
		}
		now := m.now().UTC()
		t.Status = a2a.TaskStatusCanceled
		t.CompletedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	m.abort(ctx, id)
	m.logger.Info("task canceled", "task_id", id)
	return task, nil
}

func (m *Manager) abort(ctx context.Context, id string) {
	m.mu.Lock()
	run, ok := m.runs[id]
	var upstreamTaskID, user string
	if ok {
		upstreamTaskID, user = run.upstreamTaskID, run.user
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	run.cancel()

	stopper, ok := m.upstream.(gateway.Stopper)
	if !ok || upstreamTaskID == "" {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
	defer cancel()
	if err := stopper.Stop(stopCtx, upstreamTaskID, user); err != nil {
		m.logger.Warn("upstream stop failed", "task_id", id, "upstream_task_id", upstreamTaskID, "error", err)
	}
}

func (m *Manager) track(id string, run *activeRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = run
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
}

func (m *Manager) setUpstream(id, upstreamTaskID, user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		run.upstreamTaskID, run.user = upstreamTaskID, user
	}
}

// ActiveRuns returns the number of runs in progress.
func (m *Manager) ActiveRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// runResult is what a run produced before it is persisted.
type runResult struct {
	text           string
	conversationID string
	messageID      string
	user           string
	artifactID     string
	err            error
	reported       bool // an error frame was already emitted
}

// RunTask executes a pending task to completion.
//
// Upstream failures do not make RunTask return an error: the task is marked
// failed and returned. Errors are returned only when the task does not exist
// or is not pending.
func (m *Manager) RunTask(ctx context.Context, id string, opts ...RunOption) (*a2a.Task, error) {
	o := ApplyRunOptions(opts...)

	task, err := m.store.Mutate(ctx, id, func(t *a2a.Task) error {
		if t.Status != a2a.TaskStatusPending {
			return fmt.Errorf("%w: cannot run task in status: %s", ErrInvalidTransition, t.Status)
		}
		t.Status = a2a.TaskStatusRunning
		return nil
	})
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	o.emit(a2a.Outbound{Event: a2a.NewStatusUpdate(task.ID, task.ContextID, task.Status, false)})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.track(id, &activeRun{cancel: cancel})
	defer m.untrack(id)

	start := m.now()
	m.logger.Info("task started", "task_id", id, "context_id", task.ContextID)
	res := m.execute(runCtx, task, o)

	final := m.finish(context.WithoutCancel(ctx), task, res)
	m.report(final, res, o)
	m.logger.Info("task finished",
		"task_id", id,
		"status", final.Status,
		"chars", len(res.text),
		"duration", m.now().Sub(start),
	)
	return final, nil
}

// execute streams the upstream response. The stream is closed on return.
func (m *Manager) execute(ctx context.Context, task *a2a.Task, o *RunOptions) (res runResult) {
	res.artifactID = a2a.NewArtifactID()
	res.conversationID = task.ConversationID()

	req, err := m.translator.ToUpstreamRequest(ctx, task, o.CorrelationID)
	if err != nil {
		res.err = err
		return res
	}
	res.user = req.User

	stream, err := m.upstream.Stream(ctx, req)
	if err != nil {
		res.err = fmt.Errorf("open upstream stream: %w", err)
		return res
	}
	defer stream.Close()

	var buf strings.Builder
	for ev, err := range stream.Events() {
		if err != nil {
			res.err = err
			break
		}
		if ev.ConversationID != "" {
			res.conversationID = ev.ConversationID
		}
		if ev.TaskID != "" {
			m.setUpstream(task.ID, ev.TaskID, req.User)
		}

		switch ev.Kind {
		case gateway.KindMessageChunk:
			buf.WriteString(ev.Answer)
		case gateway.KindMessageEnd:
			res.messageID = ev.MessageID
			// completion is reported once the task is persisted
			continue
		case gateway.KindError:
			if out := m.translator.FromUpstreamEvent(ev, task.ID, task.ContextID, res.artifactID); out != nil {
				o.emit(*out)
				res.reported = true
				res.err = errors.New(out.Err.Message)
			}
		case gateway.KindAgentThought:
			m.logger.Debug("agent thought", "task_id", task.ID, "tool", ev.Tool)
		}
		if res.err != nil {
			break
		}

		if out := m.translator.FromUpstreamEvent(ev, task.ID, task.ContextID, res.artifactID); out != nil {
			o.emit(*out)
		}
	}
	res.text = buf.String()

	if res.err == nil && ctx.Err() != nil {
		res.err = ctx.Err()
	}
	return res
}

// finish persists the outcome. A task canceled during the run stays canceled.
func (m *Manager) finish(ctx context.Context, task *a2a.Task, res runResult) *a2a.Task {
	final, err := m.store.Mutate(ctx, task.ID, func(t *a2a.Task) error {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		if res.conversationID != "" {
			t.Metadata[a2a.MetadataConversationID] = res.conversationID
		}
		if t.Status == a2a.TaskStatusCanceled {
			return nil
		}

		now := m.now().UTC()
		t.CompletedAt = &now
		if res.err != nil {
			t.Status = a2a.TaskStatusFailed
			t.Error = res.err.Error()
			return nil
		}

		t.History = append(t.History, a2a.Message{
			Role:      a2a.RoleAgent,
			Parts:     []a2a.Part{a2a.NewTextPart(res.text)},
			Timestamp: &now,
		})
		t.Artifacts = append(t.Artifacts, m.artifact(res, now))
		t.Status = a2a.TaskStatusCompleted
		return nil
	})
	if err != nil {
		m.logger.Error("failed to persist task result", "task_id", task.ID, "error", err)
		now := m.now().UTC()
		task.Status = a2a.TaskStatusFailed
		task.Error = fmt.Sprintf("persist result: %v", err)
		task.CompletedAt = &now
		return task
	}

	if final.Status == a2a.TaskStatusCompleted {
		m.translator.RecordContinuation(ctx, res.conversationID, res.user)
	}
	if res.err != nil {
		m.logger.Warn("task failed", "task_id", task.ID, "error", res.err)
	}
	return final
}

func (m *Manager) artifact(res runResult, now time.Time) a2a.Artifact {
	meta := map[string]any{translator.MetadataEventType: "message"}
	if res.messageID != "" {
		meta[translator.MetadataMessageID] = res.messageID
	}
	return a2a.Artifact{
		ArtifactID: res.artifactID,
		Name:       translator.DefaultArtifactName,
		Parts:      []a2a.Part{a2a.NewTextPart(res.text)},
		Metadata:   meta,
		CreatedAt:  now,
	}
}

// report emits the closing events of a run.
func (m *Manager) report(final *a2a.Task, res runResult, o *RunOptions) {
	if o.Sink == nil {
		return
	}
	switch final.Status {
	case a2a.TaskStatusCompleted:
		if n := len(final.Artifacts); n > 0 {
			up := a2a.NewArtifactUpdate(final.ID, final.ContextID, final.Artifacts[n-1])
			up.LastChunk = true
			o.emit(a2a.Outbound{Event: up})
		}
	case a2a.TaskStatusFailed:
		if !res.reported {
			o.emit(a2a.Outbound{Err: a2a.NewError(a2a.CodeServerError, final.Error)})
		}
	}

	up := a2a.NewStatusUpdate(final.ID, final.ContextID, final.Status, true)
	meta := map[string]any{}
	if conv := final.ConversationID(); conv != "" {
		meta[a2a.MetadataConversationID] = conv
	}
	if res.messageID != "" && final.Status == a2a.TaskStatusCompleted {
		meta[translator.MetadataMessageID] = res.messageID
	}
	if final.Error != "" {
		meta["error"] = final.Error
	}
	if len(meta) > 0 {
		up.Metadata = meta
	}
	o.emit(a2a.Outbound{Event: up})
}
