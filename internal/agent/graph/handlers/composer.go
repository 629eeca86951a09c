package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const (
	NoDataResponse  = "I couldn't find any data matching your query. Would you like to try a different question?"
	UnknownResponse = "I'm not sure how to help with that. Could you rephrase your question?"
)

// Composition is the composer's answer plus tags for the assistant turn.
type Composition struct {
	Text string
	Tags map[string]any
}

// ComposeInput is everything the composer reads from the finished state.
type ComposeInput struct {
	Query           string
	SessionID       string
	Intent          model.Intent
	StructuredQuery string
	ContextSnapshot string
	Profile         model.Profile
	Output          *model.HandlerOutput
	Err             *model.HandlerError
}

// Composer turns the handler outcome into the final response. It never fails
// and never re-invokes a handler.
type Composer struct {
	completer            llm.Completer
	experiencedThreshold int
}

func NewComposer(c llm.Completer, experiencedThreshold int) *Composer {
	if experiencedThreshold <= 0 {
		experiencedThreshold = 5
	}
	return &Composer{completer: c, experiencedThreshold: experiencedThreshold}
}

func (c *Composer) Compose(ctx context.Context, in ComposeInput) Composition {
	if in.Err != nil {
		return Composition{
			Text: c.apology(in.Err, in.Profile),
			Tags: map[string]any{"type": "error", "error_kind": string(in.Err.Kind)},
		}
	}

	out := in.Output
	if out == nil {
		return Composition{Text: UnknownResponse, Tags: map[string]any{"type": "unknown"}}
	}

	if out.Kind == model.OutputTabular {
		return c.composeTable(ctx, in)
	}

	text := strings.TrimSpace(out.Text())
	if text == "" {
		text = UnknownResponse
	}
	return Composition{Text: text, Tags: map[string]any{"type": string(out.Kind)}}
}

func (c *Composer) apology(err *model.HandlerError, p model.Profile) string {
	if p.InteractionCount > c.experiencedThreshold {
		return fmt.Sprintf(`I encountered an issue: %s

Let me help you troubleshoot:
- Check if your query is specific enough
- Try rephrasing with different keywords
- Ask for help if you need guidance on query format

What would you like to try?`, err.Message)
	}
	return `I had trouble with that request.

Don't worry! Here's what you can try:
- Ask about sales, orders, or products
- Request translations of Portuguese terms
- Ask for help to see what I can do

What would you like to explore?`
}

func (c *Composer) composeTable(ctx context.Context, in ComposeInput) Composition {
	t := in.Output.Table
	if t.Empty() {
		return Composition{Text: NoDataResponse, Tags: map[string]any{"type": "data", "has_results": false}}
	}

	tags := map[string]any{"type": "data", "has_results": true, "row_count": t.RowCount}
	text, err := c.narrate(ctx, in, t)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("narration failed; using template")
		text = RowCountSentence(t)
		tags["narrated"] = false
	} else {
		tags["narrated"] = true
	}
	return Composition{Text: text, Tags: tags}
}

func (c *Composer) narrate(ctx context.Context, in ComposeInput, t *model.Table) (string, error) {
	if c.completer == nil {
		return "", fmt.Errorf("no completion service")
	}
	sample := t.Records()
	if len(sample) > 5 {
		sample = sample[:5]
	}
	b, err := json.Marshal(sample)
	if err != nil {
		return "", err
	}
	msgs, err := prompts.Render(ctx, prompts.Narrate, map[string]any{
		"Query":    in.Query,
		"SQL":      in.StructuredQuery,
		"RowCount": t.RowCount,
		"Columns":  strings.Join(t.ColumnNames(), ", "),
		"Sample":   string(b),
		"Context":  promptContext(in.ContextSnapshot),
	})
	if err != nil {
		return "", err
	}
	return c.completer.Complete(ctx, msgs, llm.Options{})
}

// RowCountSentence is the templated narration used when the model is unavailable.
func RowCountSentence(t *model.Table) string {
	cols := t.ColumnNames()
	if len(cols) > 3 {
		cols = cols[:3]
	}
	return fmt.Sprintf("I found %d results for your query. The data shows %s information.", t.RowCount, strings.Join(cols, ", "))
}
