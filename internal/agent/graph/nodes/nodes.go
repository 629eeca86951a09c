package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-insight/server/internal/agent/graph/handlers"
	"github.com/Chative-insight/server/internal/agent/graph/router"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const (
	NodeRouter      = "Router"
	NodeStructured  = "StructuredQueryHandler"
	NodeKnowledge   = "KnowledgeHandler"
	NodeTranslation = "TranslationHandler"
	NodeUtility     = "UtilityHandler"
	NodeVisualize   = "Visualize"
	NodeComposer    = "ResponseComposer"
)

// HandlerNodes maps every intent to the node that handles it.
var HandlerNodes = map[model.Intent]string{
	model.IntentStructuredQuery: NodeStructured,
	model.IntentKnowledgeSearch: NodeKnowledge,
	model.IntentTranslation:     NodeTranslation,
	model.IntentUtility:         NodeUtility,
}

// ================ Router ================

// NewRouterPreHandler initialises the per-query state from the graph input.
func NewRouterPreHandler() func(context.Context, model.QueryInput, *model.SessionState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.SessionState) (model.QueryInput, error) {
		if err := s.Init(in); err != nil {
			return in, err
		}
		return in, nil
	}
}

// NewRouterNode classifies the query against the context snapshot.
func NewRouterNode(c router.Classifier) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (model.RouteDecision, error) {
		return c.Classify(ctx, in.Query, in.ContextSnapshot), nil
	})
}

// NewRouterPostHandler records the decision; an invalid intent becomes a fallback.
func NewRouterPostHandler() func(context.Context, model.RouteDecision, *model.SessionState) (model.RouteDecision, error) {
	return func(ctx context.Context, d model.RouteDecision, s *model.SessionState) (model.RouteDecision, error) {
		d, err := s.SetIntent(d)
		if err != nil {
			return d, err
		}
		ev := logx.Debug()
		if d.Fallback {
			ev = logx.Warn().Str("fallback_reason", d.Reason)
		}
		ev.Str("session_id", s.SessionID()).
			Str("intent", string(d.Intent)).
			Bool("classification_fallback", d.Fallback).
			Msg("query routed")
		return d, nil
	}
}

// NewIntentCondition selects the handler node for the routed intent.
func NewIntentCondition() func(context.Context, model.RouteDecision) (string, error) {
	return func(ctx context.Context, d model.RouteDecision) (string, error) {
		node, ok := HandlerNodes[d.Intent]
		if !ok {
			return HandlerNodes[model.DefaultIntent], nil
		}
		return node, nil
	}
}

// ================ Handlers ================

// NewHandlerNode runs h against a read-only view of the state.
func NewHandlerNode(stage string, h handlers.Handler) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.RouteDecision) (model.HandlerResult, error) {
		var view model.HandlerInput
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.SessionState) error {
			view = s.View()
			return nil
		}); err != nil {
			return model.HandlerResult{}, fmt.Errorf("read session state: %w", err)
		}
		res := h.Handle(ctx, view)
		if res.Err != nil {
			logx.Warn().
				Str("session_id", view.SessionID).
				Str("stage", res.Err.Stage).
				Str("error_kind", string(res.Err.Kind)).
				Msg(stage + " handler failed")
		}
		return res, nil
	})
}

// NewHandlerPostHandler merges the handler patch into the state.
func NewHandlerPostHandler() func(context.Context, model.HandlerResult, *model.SessionState) (model.HandlerResult, error) {
	return func(ctx context.Context, r model.HandlerResult, s *model.SessionState) (model.HandlerResult, error) {
		s.Apply(r)
		return r, nil
	}
}

// ================ Visualize ================

// NewVisualizeNode derives a chart from a tabular output. It never fails.
func NewVisualizeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, r model.HandlerResult) (model.HandlerResult, error) {
		var chart *model.Chart
		if r.Output != nil && r.Output.Kind == model.OutputTabular {
			chart = handlers.DetectChart(r.Output.Table)
		}
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SessionState) error {
			s.SetChart(chart)
			if chart != nil {
				s.Tag("chart_type", string(chart.Type))
			}
			return nil
		})
		return r, err
	})
}

// ================ Composer ================

// NewComposerNode produces the final response and the query result.
func NewComposerNode(c *handlers.Composer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.HandlerResult) (*model.QueryResult, error) {
		var in handlers.ComposeInput
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.SessionState) error {
			in = handlers.ComposeInput{
				Query:           s.Query(),
				SessionID:       s.SessionID(),
				Intent:          s.Intent(),
				StructuredQuery: s.StructuredQuery(),
				ContextSnapshot: s.ContextSnapshot(),
				Profile:         s.Profile(),
				Output:          s.Output(),
				Err:             s.Err(),
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("read session state: %w", err)
		}

		out := c.Compose(ctx, in)

		var result *model.QueryResult
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SessionState) error {
			if err := s.SetResponse(out.Text, out.Tags); err != nil {
				return err
			}
			if u := llm.UsageFrom(ctx); u != nil {
				s.TotalCostUSD = u.TotalUSD()
			}
			result = s.Result()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("write response: %w", err)
		}
		return result, nil
	})
}
