package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	"github.com/Chative-insight/server/internal/agent/search"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const StageTranslation = "translation"

var dictionaryMarkers = []string{
	"translate", "what does", "what is", "meaning of", "in english", "in portuguese", "category",
}

// Translation answers translation intents. Category names are looked up in
// the catalog first; anything else goes to the completion service.
type Translation struct {
	completer llm.Completer
	catalog   model.CategoryCatalog
}

// NewTranslation builds the handler. catalog may be nil.
func NewTranslation(c llm.Completer, catalog model.CategoryCatalog) *Translation {
	return &Translation{completer: c, catalog: catalog}
}

func (h *Translation) Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult {
	if tr := h.lookup(ctx, in.Query); tr != nil {
		return model.HandlerResult{
			Output: model.TranslationOutput(tr),
			Tags:   map[string]any{"from_dictionary": true},
		}
	}

	msgs, err := prompts.Render(ctx, prompts.Translate, map[string]any{"Query": in.Query})
	if err != nil {
		return model.Failed(model.NewHandlerError(StageTranslation, err))
	}
	out, err := h.completer.Complete(ctx, msgs, llm.Options{Temperature: llm.Temperature(0.1), MaxTokens: 512})
	if err != nil {
		return model.Failed(model.NewHandlerError(StageTranslation, err))
	}
	return model.HandlerResult{
		Output: model.TranslationOutput(&model.Translation{Source: in.Query, Text: out}),
		Tags:   map[string]any{"from_dictionary": false},
	}
}

func (h *Translation) lookup(ctx context.Context, query string) *model.Translation {
	if h.catalog == nil {
		return nil
	}
	lower := strings.ToLower(query)
	hit := false
	for _, m := range dictionaryMarkers {
		if strings.Contains(lower, m) {
			hit = true
			break
		}
	}
	if !hit {
		return nil
	}

	for _, term := range search.Terms(query) {
		if len([]rune(term)) <= 3 {
			continue
		}
		names, err := h.catalog.LookupCategory(ctx, term)
		if err != nil {
			logx.Debug().Err(err).Str("term", term).Msg("category lookup failed")
			return nil
		}
		for _, n := range names {
			if n.English == "" {
				continue
			}
			return &model.Translation{
				Source:         n.Portuguese,
				Text:           fmt.Sprintf("'%s' in Portuguese means '%s' in English.", n.Portuguese, n.English),
				FromDictionary: true,
			}
		}
	}
	return nil
}

var _ Handler = (*Translation)(nil)
