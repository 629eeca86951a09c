// Package llm adapts chat models to the single-shot completion contract the
// orchestration core consumes.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-insight/server/internal/core"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// Options tune a single completion call. Zero values fall back to the
// completer's defaults.
type Options struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Completer turns a prompt into text. Implementations may fail or time out;
// errors are classified with errx.Service.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []*schema.Message, opts Options) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// Temperature returns a pointer for Options.Temperature.
func Temperature(t float32) *float32 {
	return &t
}

// ChatCompleter adapts an Eino chat model to Completer, bounding every call
// by a timeout and recording token usage into the request's Usage.
type ChatCompleter struct {
	chatModel einomodel.BaseChatModel
	name      string
	defaults  Options
	timeout   time.Duration
}

func NewChatCompleter(chatModel einomodel.BaseChatModel, name string, defaults Options, timeout time.Duration) *ChatCompleter {
	if defaults.Model == "" {
		defaults.Model = name
	}
	return &ChatCompleter{chatModel: chatModel, name: name, defaults: defaults, timeout: timeout}
}

func (c *ChatCompleter) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	ctx, cancel := core.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      c.name,
		Type:      "Completer",
		Component: components.ComponentOfChatModel,
	})

	callOpts := c.callOptions(opts)
	out, err := core.Await(ctx, func(ctx context.Context) (*schema.Message, error) {
		return c.chatModel.Generate(ctx, messages, callOpts...)
	})
	if err != nil {
		logx.Warn().Err(err).Str("model", c.name).Msg("completion failed")
		return "", errx.Service("complete "+c.name, err)
	}
	if out == nil {
		return "", errx.Service("complete "+c.name, errx.ErrEmptyCompletion)
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		if u := UsageFrom(ctx); u != nil {
			u.Add(c.name, out.ResponseMeta.Usage)
		}
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", errx.Service("complete "+c.name, errx.ErrEmptyCompletion)
	}
	return text, nil
}

func (c *ChatCompleter) callOptions(opts Options) []einomodel.Option {
	if opts.Model == "" {
		opts.Model = c.defaults.Model
	}
	if opts.Temperature == nil {
		opts.Temperature = c.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.defaults.MaxTokens
	}
	callOpts := []einomodel.Option{einomodel.WithModel(opts.Model)}
	if opts.Temperature != nil {
		callOpts = append(callOpts, einomodel.WithTemperature(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, einomodel.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}

var _ Completer = (*ChatCompleter)(nil)
