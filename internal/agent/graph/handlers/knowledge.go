package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	"github.com/Chative-insight/server/internal/agent/search"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const StageKnowledge = "knowledge_search"

// Knowledge answers knowledge_search intents from ranked search snippets and
// category statistics, synthesised by the completion service.
type Knowledge struct {
	completer llm.Completer
	searcher  search.Searcher
	catalog   model.CategoryCatalog
	topK      int
}

// NewKnowledge builds the handler. searcher and catalog may be nil.
func NewKnowledge(c llm.Completer, s search.Searcher, catalog model.CategoryCatalog, topK int) *Knowledge {
	if topK <= 0 {
		topK = 10
	}
	return &Knowledge{completer: c, searcher: s, catalog: catalog, topK: topK}
}

func (h *Knowledge) Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult {
	var (
		snippets  []model.Snippet
		searchErr error
	)
	if h.searcher != nil {
		snippets, searchErr = h.searcher.Search(ctx, in.Query, h.topK)
		if searchErr != nil {
			logx.Warn().Err(searchErr).Str("session_id", in.SessionID).Msg("knowledge search failed")
		}
	}
	insights := h.insights(ctx, in.Query)

	if searchErr != nil && len(snippets) == 0 && len(insights) == 0 {
		return model.Failed(model.NewHandlerError(StageKnowledge, searchErr))
	}

	bundle := &model.KnowledgeBundle{Snippets: snippets, Insights: insights}
	answer, err := h.synthesise(ctx, in, snippets, insights)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("knowledge synthesis failed; using listing")
		answer = listing(in.Query, snippets, insights)
	}
	bundle.Answer = answer

	return model.HandlerResult{
		Output: model.KnowledgeOutput(bundle),
		Tags: map[string]any{
			"sources":  sourceNames(snippets),
			"insights": len(insights),
		},
	}
}

func (h *Knowledge) insights(ctx context.Context, query string) []map[string]any {
	if h.catalog == nil {
		return nil
	}
	var out []map[string]any
	terms := search.Terms(query)
	if len(terms) > 3 {
		terms = terms[:3]
	}
	for _, term := range terms {
		rows, err := h.catalog.CategoryInsights(ctx, term, 3)
		if err != nil {
			logx.Debug().Err(err).Str("term", term).Msg("category insights unavailable")
			continue
		}
		out = append(out, rows...)
		if len(out) >= 5 {
			return out[:5]
		}
	}
	return out
}

func (h *Knowledge) synthesise(ctx context.Context, in model.HandlerInput, snippets []model.Snippet, insights []map[string]any) (string, error) {
	var info strings.Builder
	if len(snippets) > 0 {
		info.WriteString("Search results:\n")
		info.WriteString(search.Format(snippets))
		info.WriteString("\n\n")
	}
	if len(insights) > 0 {
		b, err := json.Marshal(insights)
		if err != nil {
			return "", err
		}
		info.WriteString("Category statistics:\n")
		info.Write(b)
	}
	if info.Len() == 0 {
		info.WriteString("No specific information found.")
	}

	msgs, err := prompts.Render(ctx, prompts.Knowledge, map[string]any{
		"Query":       in.Query,
		"Information": info.String(),
		"Context":     promptContext(in.ContextSnapshot),
	})
	if err != nil {
		return "", err
	}
	return h.completer.Complete(ctx, msgs, llm.Options{Temperature: llm.Temperature(0.7)})
}

func listing(query string, snippets []model.Snippet, insights []map[string]any) string {
	if len(snippets) == 0 && len(insights) == 0 {
		return fmt.Sprintf("I couldn't find specific information about %q. Try asking about a product category or a data question.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I found about %q:\n", query)
	for i, s := range snippets {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "\n- %s", s.Text)
	}
	for _, row := range insights {
		fmt.Fprintf(&b, "\n- %v: %v orders, revenue %v", row["category"], row["orders"], row["revenue"])
	}
	return b.String()
}

func sourceNames(snippets []model.Snippet) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range snippets {
		if s.Source != "" && !seen[s.Source] {
			seen[s.Source] = true
			names = append(names, s.Source)
		}
	}
	return names
}

var _ Handler = (*Knowledge)(nil)
