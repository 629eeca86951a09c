package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-insight/server/internal/agent/graph/handlers"
	"github.com/Chative-insight/server/internal/agent/graph/nodes"
	"github.com/Chative-insight/server/internal/agent/graph/router"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	"github.com/Chative-insight/server/internal/agent/search"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// Config holds the collaborators needed to compose the full orchestration graph.
// It is a convenience layer over GraphConfig that also constructs the handler stages.
type Config struct {
	Completers *llm.Completers
	Executor   model.StructuredExecutor
	Schema     model.SchemaSource
	Catalog    model.CategoryCatalog
	Searcher   search.Searcher
	Agent      model.AgentConfig

	// Optional policy overrides
	Greeting router.GreetingPolicy
	Utility  router.UtilityPolicy
}

// GraphConfig holds the stages wired into the graph.
type GraphConfig struct {
	Classifier  router.Classifier
	Structured  handlers.Handler
	Knowledge   handlers.Handler
	Translation handlers.Handler
	Utility     handlers.Handler
	Composer    *handlers.Composer
}

// Runnable is the compiled orchestration graph.
type Runnable = compose.Runnable[model.QueryInput, *model.QueryResult]

// GraphBuilder handles the construction of the orchestration graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.QueryResult]
	errs   []error
}

// NewGraphConfig constructs every stage from cfg.
func NewGraphConfig(cfg Config) (*GraphConfig, error) {
	if cfg.Completers == nil || cfg.Completers.Router == nil || cfg.Completers.SQL == nil || cfg.Completers.Response == nil {
		return nil, fmt.Errorf("completers are not properly initialized")
	}
	if cfg.Executor == nil || cfg.Schema == nil {
		return nil, fmt.Errorf("structured executor and schema are required")
	}
	greeting := cfg.Greeting
	if greeting == nil {
		greeting = router.TieredGreeting{}
	}
	utility := cfg.Utility
	if utility == nil {
		utility = router.DefaultUtilityPolicy()
	}

	return &GraphConfig{
		Classifier:  router.NewLLMClassifier(cfg.Completers.Router),
		Structured:  handlers.NewStructured(cfg.Completers.SQL, cfg.Executor, cfg.Schema, cfg.Agent.MaxRetries),
		Knowledge:   handlers.NewKnowledge(cfg.Completers.Response, cfg.Searcher, cfg.Catalog, cfg.Agent.KnowledgeTopK),
		Translation: handlers.NewTranslation(cfg.Completers.Response, cfg.Catalog),
		Utility:     handlers.NewUtility(cfg.Completers.Response, greeting, utility),
		Composer:    handlers.NewComposer(cfg.Completers.Response, cfg.Agent.ExperiencedThreshold),
	}, nil
}

// BuildGraph constructs and returns the compiled orchestration graph
func BuildGraph(ctx context.Context, config *GraphConfig) (Runnable, error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Classifier == nil || config.Composer == nil {
		return nil, fmt.Errorf("classifier and composer are required")
	}
	if config.Structured == nil || config.Knowledge == nil || config.Translation == nil || config.Utility == nil {
		return nil, fmt.Errorf("every intent needs a handler")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.QueryResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.SessionState {
				return model.NewSessionState()
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()
	builder.addBranches()
	if len(builder.errs) > 0 {
		logx.Error().Err(builder.errs[0]).Msg("Error assembling graph")
		return nil, fmt.Errorf("error assembling graph: %w", builder.errs[0])
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) check(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.check(b.graph.AddLambdaNode(nodes.NodeRouter,
		nodes.NewRouterNode(b.config.Classifier),
		compose.WithStatePreHandler(nodes.NewRouterPreHandler()),
		compose.WithStatePostHandler(nodes.NewRouterPostHandler()),
	))

	stages := []struct {
		node    string
		handler handlers.Handler
	}{
		{nodes.NodeStructured, b.config.Structured},
		{nodes.NodeKnowledge, b.config.Knowledge},
		{nodes.NodeTranslation, b.config.Translation},
		{nodes.NodeUtility, b.config.Utility},
	}
	for _, st := range stages {
		b.check(b.graph.AddLambdaNode(st.node,
			nodes.NewHandlerNode(st.node, st.handler),
			compose.WithStatePostHandler(nodes.NewHandlerPostHandler()),
		))
	}

	b.check(b.graph.AddLambdaNode(nodes.NodeVisualize, nodes.NewVisualizeNode()))
	b.check(b.graph.AddLambdaNode(nodes.NodeComposer, nodes.NewComposerNode(b.config.Composer)))
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRouter},
		{nodes.NodeStructured, nodes.NodeVisualize},
		{nodes.NodeVisualize, nodes.NodeComposer},
		{nodes.NodeKnowledge, nodes.NodeComposer},
		{nodes.NodeTranslation, nodes.NodeComposer},
		{nodes.NodeUtility, nodes.NodeComposer},
		{nodes.NodeComposer, compose.END},
	}

	for _, edge := range edges {
		b.check(b.graph.AddEdge(edge[0], edge[1]))
	}
}

// addBranches creates the intent branch out of the router
func (b *GraphBuilder) addBranches() {
	ends := make(map[string]bool, len(nodes.HandlerNodes))
	for _, node := range nodes.HandlerNodes {
		ends[node] = true
	}
	intentBranch := compose.NewGraphBranch(nodes.NewIntentCondition(), ends)
	if err := b.graph.AddBranch(nodes.NodeRouter, intentBranch); err != nil {
		b.check(fmt.Errorf("error adding intent branch: %w", err))
	}
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (Runnable, error) {
	// router, handler, visualize, composer: four steps at most
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("orchestrator"),
		compose.WithMaxRunSteps(10),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
