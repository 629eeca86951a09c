package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-insight/server/internal/agent/llm/llmtest"
	"github.com/Chative-insight/server/internal/agent/model"
)

func testConfig() model.MemoryConfig {
	return model.MemoryConfig{
		MaxHistory:       10,
		ProfileThreshold: 5,
		ContextTurns:     4,
		TurnCharBudget:   100,
		SummaryTurnChars: 200,
	}
}

func recordPair(m *Memory, id, user, assistant string) {
	ctx := context.Background()
	m.Record(ctx, id, model.RoleUser, user, nil)
	m.Record(ctx, id, model.RoleAssistant, assistant, nil)
}

// memRepo is an in-memory model.SessionRepository.
type memRepo struct {
	mu      sync.Mutex
	snaps   map[string]*model.SessionSnapshot
	saves   int
	deletes int
}

func newMemRepo() *memRepo {
	return &memRepo{snaps: map[string]*model.SessionSnapshot{}}
}

func (r *memRepo) SaveSession(_ context.Context, snap *model.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.snaps[snap.SessionID] = snap
	return nil
}

func (r *memRepo) LoadSession(_ context.Context, id string) (*model.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[id], nil
}

func (r *memRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.snaps, id)
	return nil
}

func TestRecordBoundsHistoryAndSummarizes(t *testing.T) {
	m := New(testConfig())

	for i := 0; i < 15; i++ {
		recordPair(m, "s1", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
		assert.LessOrEqual(t, len(m.History("s1", 0)), m.MaxTurns())
	}

	history := m.History("s1", 0)
	require.Len(t, history, 20)
	assert.Equal(t, "question 5", history[0].Content)
	assert.Equal(t, "answer 14", history[19].Content)

	summary := m.Summary("s1")
	require.NotEmpty(t, summary)
	assert.Contains(t, summary, `"question 0"`)
	assert.Contains(t, summary, `"question 4"`)
	assert.NotContains(t, summary, "answer")

	p, ok := m.Profile("s1")
	require.True(t, ok)
	assert.Equal(t, 15, p.InteractionCount)
}

func TestEvictionSurvivesSummarizerFailure(t *testing.T) {
	failing := SummarizerFunc(func(context.Context, []model.Turn) (string, error) {
		return "", errors.New("summarizer down")
	})
	m := New(testConfig(), WithSummarizer(failing))

	for i := 0; i < 12; i++ {
		recordPair(m, "s1", "q", "a")
	}
	assert.Len(t, m.History("s1", 0), 20)
	assert.Empty(t, m.Summary("s1"))
}

func TestCompletionSummarizer(t *testing.T) {
	c := llmtest.New().On(llmtest.SummarizePrompt, llmtest.Text("  User explored furniture revenue.  "))
	m := New(model.MemoryConfig{MaxHistory: 1}, WithSummarizer(NewCompletionSummarizer(c, 200)))

	recordPair(m, "s1", "revenue of furniture?", "840")
	m.Record(context.Background(), "s1", model.RoleUser, "and toys?", nil)

	assert.Equal(t, "User explored furniture revenue.", m.Summary("s1"))
	calls := c.Calls(llmtest.SummarizePrompt)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "user: revenue of furniture?")
	assert.NotContains(t, calls[0].User, "assistant: 840")
}

func TestContextFormat(t *testing.T) {
	m := New(testConfig())
	assert.Equal(t, NoContext, m.Context("unknown"))

	recordPair(m, "s1", "Show revenue by category", "Here it is")
	assert.Equal(t, "\nRecent conversation:\nUser: Show revenue by category\nAssistant: Here it is", m.Context("s1"))
}

func TestContextTruncatesAndIncludesProfile(t *testing.T) {
	m := New(testConfig())

	long := strings.Repeat("x", 150)
	for i := 0; i < 6; i++ {
		recordPair(m, "s1", "order status and revenue "+long, "ok")
	}

	ctx := m.Context("s1")
	assert.Contains(t, ctx, "User has had 6 interactions.")
	assert.Contains(t, ctx, "User is interested in: order, revenue")
	assert.Contains(t, ctx, "User: order status and revenue "+strings.Repeat("x", 75)+"...")

	// only the last four turns are rendered
	assert.Equal(t, 4, strings.Count(ctx, "User: ")+strings.Count(ctx, "Assistant: "))
}

func TestProfileTopics(t *testing.T) {
	m := New(testConfig())
	ctx := context.Background()
	m.Record(ctx, "s1", model.RoleUser, "Show product sales by category", nil)
	m.Record(ctx, "s1", model.RoleUser, "Which product has the best review?", nil)
	m.Record(ctx, "s1", model.RoleUser, "Please translate moveis_decoracao", nil)
	m.Record(ctx, "s1", model.RoleAssistant, "product product product", nil)

	p, ok := m.Profile("s1")
	require.True(t, ok)
	assert.Equal(t, 3, p.InteractionCount)
	assert.Equal(t, 2, p.TopicHistogram["product"])
	assert.Equal(t, 1, p.TopicHistogram["sales"])
	assert.Equal(t, []string{"product", "category", "sales"}, p.TopTopics(3))
	assert.True(t, p.UsesTranslation)
}

func TestTagIntent(t *testing.T) {
	m := New(testConfig())
	ctx := context.Background()

	m.Record(ctx, "s1", model.RoleUser, "hello", nil)
	m.TagIntent(ctx, "s1", model.IntentUtility)
	m.TagIntent(ctx, "s1", model.IntentUtility)

	p, _ := m.Profile("s1")
	assert.Equal(t, 1, p.IntentHistogram[model.IntentUtility])
	assert.Equal(t, "utility", m.History("s1", 1)[0].Metadata["intent"])

	// intent carried on record is counted once
	m.Record(ctx, "s1", model.RoleUser, "top sellers", map[string]any{"intent": model.IntentStructuredQuery})
	m.TagIntent(ctx, "s1", model.IntentStructuredQuery)
	p, _ = m.Profile("s1")
	assert.Equal(t, 1, p.IntentHistogram[model.IntentStructuredQuery])

	m.TagIntent(ctx, "missing", model.IntentUtility)
	m.TagIntent(ctx, "s1", model.Intent("bogus"))
}

func TestHistoryLimitAndCopies(t *testing.T) {
	m := New(testConfig())
	recordPair(m, "s1", "one", "two")
	recordPair(m, "s1", "three", "four")

	last := m.History("s1", 2)
	require.Len(t, last, 2)
	assert.Equal(t, "three", last[0].Content)

	last[0].Metadata["tampered"] = true
	assert.NotContains(t, m.History("s1", 2)[0].Metadata, "tampered")
	assert.Empty(t, m.History("unknown", 5))
}

func TestForgetIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	m := New(testConfig(), WithRepository(repo))
	recordPair(m, "s1", "hello", "hi")
	require.Equal(t, 1, m.SessionCount())

	m.Forget(context.Background(), "s1")
	m.Forget(context.Background(), "s1")

	assert.Equal(t, 0, m.SessionCount())
	assert.Empty(t, m.History("s1", 0))
	_, ok := m.Profile("s1")
	assert.False(t, ok)
	assert.Nil(t, repo.snaps["s1"])
}

func TestRepositoryRestoresSessions(t *testing.T) {
	repo := newMemRepo()
	first := New(testConfig(), WithRepository(repo))
	recordPair(first, "s1", "show revenue", "840")
	require.NoError(t, first.Close(context.Background()))

	second := New(testConfig(), WithRepository(repo))
	second.Restore(context.Background(), "s1")

	history := second.History("s1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "show revenue", history[0].Content)
	p, ok := second.Profile("s1")
	require.True(t, ok)
	assert.Equal(t, 1, p.InteractionCount)
	assert.Equal(t, 1, p.TopicHistogram["revenue"])
}

func TestRestoredTurnsWithoutMetadata(t *testing.T) {
	repo := newMemRepo()
	snap := &model.SessionSnapshot{
		SessionID: "s1",
		Turns: []model.Turn{
			{Role: model.RoleUser, Content: "hello", Timestamp: time.Now()},
		},
		Profile: model.Profile{InteractionCount: 1},
	}
	repo.snaps["s1"] = snap

	m := New(testConfig(), WithRepository(repo))
	m.Restore(context.Background(), "s1")
	require.NotPanics(t, func() { m.TagIntent(context.Background(), "s1", model.IntentUtility) })

	p, ok := m.Profile("s1")
	require.True(t, ok)
	assert.Equal(t, 1, p.InteractionCount)
	assert.Equal(t, 1, p.IntentHistogram[model.IntentUtility])
	assert.Nil(t, snap.Turns[0].Metadata)
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	m := New(testConfig())
	require.NoError(t, m.Close(context.Background()))
	m.Record(context.Background(), "s1", model.RoleUser, "hello", nil)
	assert.Equal(t, 0, m.SessionCount())
}

func TestSessionIsolationUnderConcurrency(t *testing.T) {
	m := New(model.MemoryConfig{MaxHistory: 100})
	sessions := []string{"A", "B", "C", "D"}

	var wg sync.WaitGroup
	for _, id := range sessions {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				m.Record(context.Background(), id, model.RoleUser, fmt.Sprintf("%s-%d", id, i), nil)
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range sessions {
		history := m.History(id, 0)
		require.Len(t, history, 25)
		for _, turn := range history {
			assert.True(t, strings.HasPrefix(turn.Content, id+"-"), "turn %q leaked into %s", turn.Content, id)
		}
		p, _ := m.Profile(id)
		assert.Equal(t, 25, p.InteractionCount)
	}
}

func TestNormalizeSessionID(t *testing.T) {
	assert.Equal(t, "abc", NormalizeSessionID("  abc "))
	assert.True(t, strings.HasPrefix(NormalizeSessionID(""), "session-"))
	assert.True(t, strings.HasPrefix(NormalizeSessionID("bad\x00id"), "session-"))
	assert.NotEqual(t, NormalizeSessionID(""), NormalizeSessionID(""))
}

func TestStats(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := New(model.MemoryConfig{MaxHistory: 1}, WithClock(func() time.Time { return clock }))
	recordPair(m, "s1", "price of toys", "60")
	recordPair(m, "s1", "and shipping?", "7")

	stats := m.Stats("s1")
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 2, stats.TotalInteraction)
	assert.True(t, stats.HasSummary)
	assert.Equal(t, clock, stats.LastInteraction)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
