// Package handlers holds the intent-specific stages of the orchestration
// graph. A handler reads a HandlerInput and returns a HandlerResult patch; it
// never touches SessionState or conversation memory.
package handlers

import (
	"context"
	"strings"

	"github.com/Chative-insight/server/internal/agent/memory"
	"github.com/Chative-insight/server/internal/agent/model"
)

// Handler is one intent-specific stage.
type Handler interface {
	Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult
}

// Func adapts a function to Handler.
type Func func(ctx context.Context, in model.HandlerInput) model.HandlerResult

func (f Func) Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult {
	return f(ctx, in)
}

// promptContext drops the "no context" sentinel so prompts get an empty string.
func promptContext(snapshot string) string {
	if strings.TrimSpace(snapshot) == memory.NoContext {
		return ""
	}
	return snapshot
}
