package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-insight/server/internal/agent/graph/observers"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/memory"
	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// StageOrchestrator marks errors raised outside the graph stages.
const StageOrchestrator = "orchestrator"

// FailureResponse is returned when the graph itself could not produce an answer.
const FailureResponse = "I'm sorry, I couldn't process that request right now. Please try again in a moment."

// ErrClosed is reported in the result error when the orchestrator has been closed.
var ErrClosed = errors.New("orchestrator is closed")

// Orchestrator runs the compiled graph for each query and owns the
// session-scoped bookkeeping around it: memory writes before and after the
// graph, and per-session serialization.
type Orchestrator struct {
	runnable Runnable
	memory   *memory.Memory

	locks  *sessionLocks
	mu     sync.RWMutex
	closed bool
}

// NewOrchestrator wires a compiled graph to the conversation memory.
func NewOrchestrator(runnable Runnable, mem *memory.Memory) (*Orchestrator, error) {
	if runnable == nil {
		return nil, fmt.Errorf("runnable is nil")
	}
	if mem == nil {
		return nil, fmt.Errorf("memory is nil")
	}
	return &Orchestrator{runnable: runnable, memory: mem, locks: newSessionLocks()}, nil
}

// BuildOrchestrator constructs the stages from cfg, compiles the graph and
// returns an Orchestrator over mem.
func BuildOrchestrator(ctx context.Context, cfg Config, mem *memory.Memory) (*Orchestrator, error) {
	gc, err := NewGraphConfig(cfg)
	if err != nil {
		return nil, err
	}
	runnable, err := BuildGraph(ctx, gc)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Orchestration graph built successfully")
	return NewOrchestrator(runnable, mem)
}

// ProcessQuery answers query within sessionID. It always returns a result
// with a non-empty Response; failures are reported in result.Error.
// Queries on the same session run one at a time.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, sessionID string) *model.QueryResult {
	sessionID = memory.NormalizeSessionID(sessionID)

	if o.isClosed() {
		return failure(sessionID, errx.KindUnavailable, ErrClosed)
	}

	unlock, err := o.locks.lock(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("gave up waiting for session")
		return failure(sessionID, errx.KindOf(err), err)
	}
	defer unlock()

	start := time.Now()
	o.memory.Record(ctx, sessionID, model.RoleUser, query, nil)

	profile, _ := o.memory.Profile(sessionID)
	in := model.QueryInput{
		SessionID:       sessionID,
		Query:           query,
		ContextSnapshot: o.memory.Context(sessionID),
		Profile:         profile,
	}

	runCtx, usage := llm.WithUsage(ctx)
	result, err := o.runnable.Invoke(runCtx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	switch {
	case err != nil:
		logx.Error().Err(err).Str("session_id", sessionID).Msg("graph execution failed")
		result = failure(sessionID, errx.KindOf(err), err)
	case result == nil || strings.TrimSpace(result.Response) == "":
		result = failure(sessionID, errx.KindExecution, fmt.Errorf("graph returned no response"))
	}

	if result.Error == nil || result.Error.Stage != StageOrchestrator {
		o.memory.TagIntent(ctx, sessionID, result.Intent)
	}
	o.memory.Record(ctx, sessionID, model.RoleAssistant, result.Response, turnMetadata(result))

	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["usage"] = usage.Snapshot()

	logx.Debug().
		Str("session_id", sessionID).
		Str("intent", string(result.Intent)).
		Bool("failed", result.Error != nil).
		Int("retry_count", result.RetryCount).
		Float64("usage_cost_total_usd", usage.TotalUSD()).
		Dur("elapsed", time.Since(start)).
		Msg("query processed")
	return result
}

// GetHistory returns up to limit most recent turns of the session.
func (o *Orchestrator) GetHistory(ctx context.Context, sessionID string, limit int) []model.Turn {
	o.memory.Restore(ctx, sessionID)
	return o.memory.History(sessionID, limit)
}

// ClearSession forgets the session. Unknown sessions are a no-op.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) {
	unlock, err := o.locks.lock(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("clearing session without its lock")
	} else {
		defer unlock()
	}
	o.memory.Forget(ctx, sessionID)
	logx.Info().Str("session_id", sessionID).Msg("session cleared")
}

// GetProfile returns the session profile; unknown sessions get an empty one.
func (o *Orchestrator) GetProfile(ctx context.Context, sessionID string) model.Profile {
	o.memory.Restore(ctx, sessionID)
	p, _ := o.memory.Profile(sessionID)
	return p
}

// SessionStats summarises one session.
func (o *Orchestrator) SessionStats(ctx context.Context, sessionID string) model.SessionStats {
	o.memory.Restore(ctx, sessionID)
	return o.memory.Stats(sessionID)
}

// ActiveSessions is the number of sessions held in memory.
func (o *Orchestrator) ActiveSessions() int {
	return o.memory.SessionCount()
}

// Close stops accepting queries and flushes the memory.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()
	return o.memory.Close(ctx)
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

func turnMetadata(r *model.QueryResult) map[string]any {
	md := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md["intent"] = string(r.Intent)
	if r.Error != nil {
		md["error_kind"] = string(r.Error.Kind)
	}
	return md
}

func failure(sessionID string, kind errx.Kind, err error) *model.QueryResult {
	herr := model.NewHandlerError(StageOrchestrator, err)
	if kind != "" {
		herr.Kind = kind
	}
	return &model.QueryResult{
		SessionID: sessionID,
		Response:  FailureResponse,
		Intent:    model.DefaultIntent,
		Error:     herr,
		Metadata:  map[string]any{},
		Timestamp: time.Now().UTC(),
	}
}

// ================ Session locks ================

// sessionLocks hands out one lock per session id. Entries are reference
// counted and dropped once nobody holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session is free or ctx is done.
func (l *sessionLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			l.release(id, sl)
		}, nil
	case <-ctx.Done():
		l.release(id, sl)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) release(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

// held reports how many sessions currently have a lock entry.
func (l *sessionLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
