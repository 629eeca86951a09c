package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
)

// Summarizer condenses evicted turns into a short paragraph.
type Summarizer interface {
	Summarize(ctx context.Context, turns []model.Turn) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, turns []model.Turn) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, turns []model.Turn) (string, error) {
	return f(ctx, turns)
}

// CompletionSummarizer asks a completion service for the summary.
type CompletionSummarizer struct {
	completer llm.Completer
	turnChars int
}

func NewCompletionSummarizer(c llm.Completer, turnChars int) *CompletionSummarizer {
	return &CompletionSummarizer{completer: c, turnChars: turnChars}
}

func (s *CompletionSummarizer) Summarize(ctx context.Context, turns []model.Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	msgs, err := prompts.Render(ctx, prompts.Summarize, map[string]any{
		"Conversation": transcript(turns, s.turnChars),
	})
	if err != nil {
		return "", err
	}
	out, err := s.completer.Complete(ctx, msgs, llm.Options{MaxTokens: 150, Temperature: llm.Temperature(0.3)})
	if err != nil {
		return "", fmt.Errorf("summarize %d turns: %w", len(turns), err)
	}
	return strings.TrimSpace(out), nil
}

// ExtractiveSummarizer lists what the user asked, with no model call. It is
// the default when no completion service is configured.
type ExtractiveSummarizer struct {
	turnChars int
}

func NewExtractiveSummarizer(turnChars int) *ExtractiveSummarizer {
	return &ExtractiveSummarizer{turnChars: turnChars}
}

func (s *ExtractiveSummarizer) Summarize(_ context.Context, turns []model.Turn) (string, error) {
	var asked []string
	for _, t := range turns {
		if t.Role == model.RoleUser && strings.TrimSpace(t.Content) != "" {
			asked = append(asked, fmt.Sprintf("%q", Truncate(strings.TrimSpace(t.Content), s.turnChars)))
		}
	}
	if len(asked) == 0 {
		return "", nil
	}
	return "User asked about " + strings.Join(asked, "; ") + ".", nil
}

func transcript(turns []model.Turn, turnChars int) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, Truncate(t.Content, turnChars))
	}
	return b.String()
}
