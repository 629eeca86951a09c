// Package router classifies a query into one of the closed set of intents.
package router

import (
	"context"

	"github.com/Chative-insight/server/internal/agent/graph/parsers"
	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// Fallback reasons recorded on a RouteDecision.
const (
	ReasonInvalidOutput = "invalid_output"
	ReasonPromptError   = "prompt_error"
)

// Classifier maps a query and its conversation context to an intent. It never
// fails: problems are absorbed into a fallback decision.
type Classifier interface {
	Classify(ctx context.Context, query, conversationCtx string) model.RouteDecision
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, query, conversationCtx string) model.RouteDecision

func (f ClassifierFunc) Classify(ctx context.Context, query, conversationCtx string) model.RouteDecision {
	return f(ctx, query, conversationCtx)
}

// LLMClassifier asks the completion service once with the closed-set router
// prompt. No retries are made at this layer.
type LLMClassifier struct {
	completer llm.Completer
}

func NewLLMClassifier(c llm.Completer) *LLMClassifier {
	return &LLMClassifier{completer: c}
}

func (c *LLMClassifier) Classify(ctx context.Context, query, conversationCtx string) model.RouteDecision {
	msgs, err := prompts.Render(ctx, prompts.Router, map[string]any{
		"Context": conversationCtx,
		"Query":   query,
	})
	if err != nil {
		logx.Error().Err(err).Msg("router prompt render failed")
		return Fallback(ReasonPromptError)
	}

	out, err := c.completer.Complete(ctx, msgs, llm.Options{})
	if err != nil {
		return Fallback(string(errx.KindOf(err)))
	}

	intent, ok := parsers.ParseIntent(out)
	if !ok {
		logx.Warn().Str("raw", out).Msg("classifier returned an unknown intent")
		return Fallback(ReasonInvalidOutput)
	}
	return model.RouteDecision{Intent: intent}
}

// Fallback is the deterministic decision used whenever classification fails.
func Fallback(reason string) model.RouteDecision {
	return model.RouteDecision{Intent: model.DefaultIntent, Fallback: true, Reason: reason}
}

var _ Classifier = (*LLMClassifier)(nil)
