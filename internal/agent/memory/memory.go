// Package memory implements per-session conversation memory: a bounded turn
// history, an incrementally maintained profile, and a rolling summary that
// absorbs turns as they are evicted.
//
// Memory is safe for concurrent use. Sessions are independent: each entry has
// its own lock, so records on different sessions never wait on each other.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// NoContext is returned by Context for unknown or empty sessions.
const NoContext = "No previous context."

// Option configures a Memory.
type Option func(*Memory)

// WithSummarizer replaces the default extractive summarizer.
func WithSummarizer(s Summarizer) Option {
	return func(m *Memory) { m.summarizer = s }
}

// WithRepository mirrors every session to repo and lazily restores sessions
// that are not yet in process memory.
func WithRepository(repo model.SessionRepository) Option {
	return func(m *Memory) { m.repo = repo }
}

// WithKeywords replaces the topic keyword dictionary.
func WithKeywords(keywords []string) Option {
	return func(m *Memory) { m.keywords = keywords }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// Memory is the conversation memory store. Create it with New and release it
// with Close.
type Memory struct {
	cfg        model.MemoryConfig
	summarizer Summarizer
	repo       model.SessionRepository
	keywords   []string
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	once    sync.Once
	mu      sync.Mutex
	turns   []model.Turn
	profile model.Profile
	summary string
}

func New(cfg model.MemoryConfig, opts ...Option) *Memory {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 4
	}
	if cfg.TurnCharBudget <= 0 {
		cfg.TurnCharBudget = 100
	}
	if cfg.SummaryTurnChars <= 0 {
		cfg.SummaryTurnChars = 200
	}
	m := &Memory{
		cfg:      cfg,
		keywords: DefaultKeywords,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.summarizer == nil {
		m.summarizer = NewExtractiveSummarizer(cfg.SummaryTurnChars)
	}
	return m
}

// NormalizeSessionID trims id and replaces a malformed one (empty or carrying
// control characters) with a fresh random identifier.
func NormalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return "session-" + uuid.NewString()
	}
	return id
}

// MaxTurns is the per-session turn bound (user and assistant pairs).
func (m *Memory) MaxTurns() int {
	return 2 * m.cfg.MaxHistory
}

// Record appends a turn. User turns also update the profile. When the history
// exceeds MaxTurns the oldest turns are summarised (best effort) into the
// rolling summary and dropped.
func (m *Memory) Record(ctx context.Context, sessionID string, role model.Role, content string, metadata map[string]any) {
	sessionID = NormalizeSessionID(sessionID)
	e, ok := m.acquire(ctx, sessionID)
	if !ok {
		logx.Warn().Str("session_id", sessionID).Msg("record on closed memory ignored")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now().UTC()
	turn := model.Turn{Role: role, Content: content, Timestamp: now, Metadata: map[string]any{}}
	for k, v := range metadata {
		turn.Metadata[k] = v
	}
	e.turns = append(e.turns, turn)

	if role == model.RoleUser {
		updateProfile(&e.profile, content, metadata, m.keywords, now)
	}

	if excess := len(e.turns) - m.MaxTurns(); excess > 0 {
		m.evict(ctx, sessionID, e, excess)
	}

	m.persist(ctx, sessionID, e)
}

// evict summarises and drops the oldest n turns. Caller holds e.mu.
func (m *Memory) evict(ctx context.Context, sessionID string, e *entry, n int) {
	evicted := make([]model.Turn, n)
	copy(evicted, e.turns[:n])

	summary, err := m.summarizer.Summarize(ctx, evicted)
	switch {
	case err != nil:
		logx.Warn().Err(err).Str("session_id", sessionID).Int("evicted", n).
			Msg("summarization failed; evicting without summary")
	case strings.TrimSpace(summary) != "":
		e.summary = strings.TrimSpace(e.summary + "\n" + strings.TrimSpace(summary))
	}

	e.turns = append([]model.Turn(nil), e.turns[n:]...)
	logx.Debug().Str("session_id", sessionID).Int("evicted", n).Int("kept", len(e.turns)).Msg("history evicted")
}

// TagIntent records the routed intent on the latest user turn and counts it in
// the profile, unless that turn already carried an intent when it was recorded.
func (m *Memory) TagIntent(ctx context.Context, sessionID string, intent model.Intent) {
	if !intent.Valid() {
		return
	}
	e := m.lookup(sessionID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.turns) - 1; i >= 0; i-- {
		if e.turns[i].Role != model.RoleUser {
			continue
		}
		if _, ok := e.turns[i].Metadata["intent"]; ok {
			return
		}
		e.turns[i].Metadata["intent"] = string(intent)
		e.profile.IntentHistogram[intent]++
		break
	}
	m.persist(ctx, sessionID, e)
}

// Context renders the session's conversational context: rolling summary,
// profile digest, then the most recent turns. It never mutates the session.
func (m *Memory) Context(sessionID string) string {
	e := m.lookup(sessionID)
	if e == nil {
		return NoContext
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return renderContext(e.summary, e.profile, e.turns, m.cfg)
}

// History returns up to limit most recent turns (all when limit <= 0).
func (m *Memory) History(sessionID string, limit int) []model.Turn {
	e := m.lookup(sessionID)
	if e == nil {
		return []model.Turn{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	turns := e.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]model.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// Profile returns a copy of the session profile and whether the session exists.
func (m *Memory) Profile(sessionID string) (model.Profile, bool) {
	e := m.lookup(sessionID)
	if e == nil {
		return model.NewProfile(), false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Clone(), true
}

// Summary returns the rolling summary of the session.
func (m *Memory) Summary(sessionID string) string {
	e := m.lookup(sessionID)
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Stats summarises one session.
func (m *Memory) Stats(sessionID string) model.SessionStats {
	p, _ := m.Profile(sessionID)
	return model.SessionStats{
		TotalMessages:    len(m.History(sessionID, 0)),
		TotalInteraction: p.InteractionCount,
		IntentHistogram:  p.IntentHistogram,
		TopicHistogram:   p.TopicHistogram,
		LastInteraction:  p.LastInteraction,
		HasSummary:       m.Summary(sessionID) != "",
	}
}

// SessionCount returns the number of sessions held in process memory.
func (m *Memory) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Forget removes the session entirely. It is idempotent.
func (m *Memory) Forget(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete persisted session")
		}
	}
}

// Close flushes every session to the repository (when configured) and
// releases them. Records after Close are ignored.
func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.closed = true
	m.mu.Unlock()

	if m.repo == nil {
		return nil
	}
	var firstErr error
	for id, e := range entries {
		e.mu.Lock()
		snap := snapshot(id, e, m.now())
		e.mu.Unlock()
		if err := m.repo.SaveSession(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Restore loads a persisted session into process memory ahead of a read.
// Without a repository it does nothing.
func (m *Memory) Restore(ctx context.Context, sessionID string) {
	if m.repo == nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	m.acquire(ctx, sessionID)
}

func (m *Memory) lookup(sessionID string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[strings.TrimSpace(sessionID)]
}

// acquire returns the entry for sessionID, creating it (and restoring it from
// the repository) on first use.
func (m *Memory) acquire(ctx context.Context, sessionID string) (*entry, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false
	}
	e, ok := m.entries[sessionID]
	if !ok {
		e = &entry{profile: model.NewProfile()}
		m.entries[sessionID] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		if m.repo == nil {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		snap, err := m.repo.LoadSession(ctx, sessionID)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to restore session; starting fresh")
			return
		}
		if snap == nil {
			return
		}
		e.turns = make([]model.Turn, len(snap.Turns))
		for i, t := range snap.Turns {
			e.turns[i] = t.Clone()
		}
		e.profile = snap.Profile.Clone()
		e.summary = snap.RollingSummary
		logx.Debug().Str("session_id", sessionID).Int("turns", len(e.turns)).Msg("session restored")
	})
	return e, true
}

// persist mirrors the entry to the repository. Caller holds e.mu.
func (m *Memory) persist(ctx context.Context, sessionID string, e *entry) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveSession(ctx, snapshot(sessionID, e, m.now())); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist session")
	}
}

func snapshot(sessionID string, e *entry, now time.Time) *model.SessionSnapshot {
	turns := make([]model.Turn, len(e.turns))
	for i, t := range e.turns {
		turns[i] = t.Clone()
	}
	return &model.SessionSnapshot{
		SessionID:      sessionID,
		Turns:          turns,
		Profile:        e.profile.Clone(),
		RollingSummary: e.summary,
		UpdatedAt:      now.UTC(),
	}
}
