package memory

import (
	"strings"
	"time"

	"github.com/Chative-insight/server/internal/agent/model"
)

// DefaultKeywords is the fixed topic dictionary matched against user turns.
var DefaultKeywords = []string{
	"product", "order", "delivery", "customer", "review", "payment",
	"category", "seller", "price", "revenue", "sales", "shipping",
}

var translationMarkers = []string{"translate", "traduz"}

func updateProfile(p *model.Profile, content string, metadata map[string]any, keywords []string, now time.Time) {
	p.InteractionCount++
	p.LastInteraction = now

	if in, ok := intentFrom(metadata); ok {
		p.IntentHistogram[in]++
	}

	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		if _, seen := p.TopicHistogram[kw]; !seen {
			p.TopicOrder = append(p.TopicOrder, kw)
		}
		p.TopicHistogram[kw]++
	}

	for _, marker := range translationMarkers {
		if strings.Contains(lower, marker) {
			p.UsesTranslation = true
			break
		}
	}
}

func intentFrom(metadata map[string]any) (model.Intent, bool) {
	switch v := metadata["intent"].(type) {
	case model.Intent:
		return v, v.Valid()
	case string:
		return model.ParseIntent(v)
	}
	return model.IntentUnset, false
}
