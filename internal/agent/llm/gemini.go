package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	RouterConfig   *model.RouterModelConfig
	SQLConfig      *model.SQLModelConfig
	ResponseConfig *model.ResponseModelConfig
	CallTimeout    time.Duration
}

// Completers groups the role-specific completion services used by the graph.
type Completers struct {
	Router   Completer
	SQL      Completer
	Response Completer
}

// NewGeminiCompleters creates the router, SQL and response chat models on a
// shared Gemini client and wraps each in a ChatCompleter.
func NewGeminiCompleters(ctx context.Context, config ChatModelConfig) (*Completers, error) {
	if config.RouterConfig == nil || config.SQLConfig == nil || config.ResponseConfig == nil {
		return nil, fmt.Errorf("model configs are not properly initialized")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	newModel := func(role, name string, temperature float32, maxTokens int) (*ChatCompleter, error) {
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       name,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
		if err != nil {
			logx.Error().Err(err).Str("role", role).Msg("Error creating chat model")
			return nil, fmt.Errorf("error creating %s model: %w", role, err)
		}
		return NewChatCompleter(cm, name, Options{
			Model:       name,
			Temperature: Temperature(temperature),
			MaxTokens:   maxTokens,
		}, config.CallTimeout), nil
	}

	router, err := newModel("router", config.RouterConfig.Model, config.RouterConfig.Temperature, config.RouterConfig.MaxTokens)
	if err != nil {
		return nil, err
	}
	sql, err := newModel("sql", config.SQLConfig.Model, config.SQLConfig.Temperature, config.SQLConfig.MaxTokens)
	if err != nil {
		return nil, err
	}
	response, err := newModel("response", config.ResponseConfig.Model, config.ResponseConfig.Temperature, config.ResponseConfig.MaxTokens)
	if err != nil {
		return nil, err
	}

	logx.Debug().
		Str("router_model", config.RouterConfig.Model).
		Str("sql_model", config.SQLConfig.Model).
		Str("response_model", config.ResponseConfig.Model).
		Msg("Gemini chat models ready")

	return &Completers{Router: router, SQL: sql, Response: response}, nil
}
