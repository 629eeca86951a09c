package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

type usageKey struct{}

// Usage accumulates token usage and cost across the model calls of one query.
type Usage struct {
	mu               sync.Mutex
	calls            int
	promptTokens     int
	completionTokens int
	totalCostUSD     float64
}

// WithUsage attaches a fresh Usage accumulator to ctx.
func WithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFrom returns the accumulator attached to ctx, or nil.
func UsageFrom(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

func (u *Usage) Add(modelName string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))

	u.mu.Lock()
	u.calls++
	u.promptTokens += usage.PromptTokens
	u.completionTokens += usage.CompletionTokens
	u.totalCostUSD += totalC
	u.mu.Unlock()

	logx.Debug().
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

func (u *Usage) TotalUSD() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalCostUSD
}

// Snapshot returns the accumulated counters as a metadata map.
func (u *Usage) Snapshot() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return map[string]any{
		"currency":          "USD",
		"calls":             u.calls,
		"prompt_tokens":     u.promptTokens,
		"completion_tokens": u.completionTokens,
		"total_cost":        u.totalCostUSD,
	}
}
