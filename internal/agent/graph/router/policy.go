package router

import (
	"strings"
	"unicode"

	"github.com/Chative-insight/server/internal/agent/model"
)

// GreetingTier selects the greeting variant for a session.
type GreetingTier int

const (
	TierOnboarding GreetingTier = iota
	TierReturning
	TierPersonalized
)

func (t GreetingTier) String() string {
	switch t {
	case TierReturning:
		return "returning"
	case TierPersonalized:
		return "personalized"
	}
	return "onboarding"
}

// GreetingPolicy picks a greeting tier from the number of interactions that
// happened before the current query.
type GreetingPolicy interface {
	DetectGreetingTier(priorInteractions int) GreetingTier
}

// TieredGreeting onboards first-time sessions, welcomes back sessions with at
// least one prior interaction and personalizes from PersonalizedFrom onward.
type TieredGreeting struct {
	PersonalizedFrom int
}

func (p TieredGreeting) DetectGreetingTier(prior int) GreetingTier {
	from := p.PersonalizedFrom
	if from <= 0 {
		from = 5
	}
	switch {
	case prior <= 0:
		return TierOnboarding
	case prior < from:
		return TierReturning
	default:
		return TierPersonalized
	}
}

// UtilityPolicy detects which utility a query asks for.
type UtilityPolicy interface {
	DetectUtilityKind(query string) model.UtilityKind
}

// KeywordRule maps any of its keywords to Kind. Single-word keywords match
// whole words; phrases match as substrings.
type KeywordRule struct {
	Kind     model.UtilityKind
	Keywords []string
}

// KeywordPolicy evaluates rules in order; the first hit wins.
type KeywordPolicy struct {
	Rules   []KeywordRule
	Default model.UtilityKind
}

// DefaultUtilityPolicy returns the built-in keyword rules.
func DefaultUtilityPolicy() *KeywordPolicy {
	return &KeywordPolicy{
		Rules: []KeywordRule{
			{model.UtilityGreeting, []string{"hello", "hi", "hey", "olá", "ola", "oi", "good morning", "good afternoon", "good evening"}},
			{model.UtilityHelp, []string{"help", "what can you", "capabilities", "ajuda"}},
			{model.UtilityDefinition, []string{"define", "definition", "what is", "what are", "o que é"}},
			{model.UtilityTime, []string{"time", "date", "today", "now", "hora", "data"}},
			{model.UtilityThanks, []string{"thank", "thanks", "thank you", "obrigado", "obrigada"}},
			{model.UtilityLocation, []string{"location", "where", "onde"}},
		},
		Default: model.UtilityConversation,
	}
}

func (p *KeywordPolicy) DetectUtilityKind(query string) model.UtilityKind {
	lower := strings.ToLower(strings.TrimSpace(query))
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		words[w] = true
	}
	for _, rule := range p.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return rule.Kind
				}
				continue
			}
			if words[kw] {
				return rule.Kind
			}
		}
	}
	return p.Default
}

var (
	_ GreetingPolicy = TieredGreeting{}
	_ UtilityPolicy  = (*KeywordPolicy)(nil)
)
