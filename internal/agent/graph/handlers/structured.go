package handlers

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-insight/server/internal/agent/graph/parsers"
	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const (
	StageGenerate = "structured_query.generate"
	StageExecute  = "structured_query.execute"
	StageFix      = "structured_query.fix"
)

// ErrEmptyQuery is returned when the model reply holds no statement.
var ErrEmptyQuery = errors.New("no query could be generated")

// Structured answers structured_query intents: it generates a query, runs it
// and, on a syntax error while retries remain, makes one corrective attempt.
// maxRetries bounds the session's retry_count; a single Handle call never
// regenerates more than once, whatever maxRetries is.
//
//	GENERATE -> EXECUTE -> SUCCEEDED
//	                    -> RETRY_FIX -> SUCCEEDED | FAILED
//	                    -> FAILED
type Structured struct {
	completer  llm.Completer
	executor   model.StructuredExecutor
	schema     model.SchemaSource
	maxRetries int
}

func NewStructured(c llm.Completer, exec model.StructuredExecutor, schema model.SchemaSource, maxRetries int) *Structured {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Structured{completer: c, executor: exec, schema: schema, maxRetries: maxRetries}
}

func (h *Structured) Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult {
	query, err := h.generate(ctx, in)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("query generation failed")
		return model.Failed(model.NewHandlerError(StageGenerate, err))
	}

	table, err := h.executor.RunStructuredQuery(ctx, query)
	if err == nil {
		return h.succeeded(query, table, 0)
	}

	if errx.KindOf(err) != errx.KindSyntax || in.RetryCount >= h.maxRetries {
		return h.failed(StageExecute, query, err, 0)
	}

	logx.Info().
		Str("session_id", in.SessionID).
		Int("attempt", in.RetryCount+1).
		Err(err).
		Msg("syntax error; regenerating query")

	fixed, ferr := h.fix(ctx, in, query, err)
	if ferr != nil {
		return h.failed(StageFix, query, ferr, 1)
	}
	table, err = h.executor.RunStructuredQuery(ctx, fixed)
	if err != nil {
		return h.failed(StageExecute, fixed, err, 1)
	}
	return h.succeeded(fixed, table, 1)
}

func (h *Structured) succeeded(query string, table *model.Table, retries int) model.HandlerResult {
	if table == nil {
		table = &model.Table{Rows: [][]any{}}
	}
	return model.HandlerResult{
		Output:          model.TabularOutput(table),
		StructuredQuery: query,
		Retries:         retries,
		Tags:            map[string]any{"row_count": table.RowCount},
	}
}

func (h *Structured) failed(stage, query string, err error, retries int) model.HandlerResult {
	return model.HandlerResult{
		Err:             model.NewHandlerError(stage, err),
		StructuredQuery: query,
		Retries:         retries,
	}
}

func (h *Structured) generate(ctx context.Context, in model.HandlerInput) (string, error) {
	msgs, err := prompts.Render(ctx, prompts.SQLGenerate, map[string]any{
		"Schema":   h.schema.SchemaDescription(),
		"Examples": h.schema.ExampleQueries(),
		"Context":  promptContext(in.ContextSnapshot),
		"Query":    in.Query,
	})
	if err != nil {
		return "", err
	}
	return h.complete(ctx, msgs)
}

func (h *Structured) fix(ctx context.Context, in model.HandlerInput, failed string, cause error) (string, error) {
	msgs, err := prompts.Render(ctx, prompts.SQLFix, map[string]any{
		"Schema": h.schema.SchemaDescription(),
		"Query":  in.Query,
		"Failed": failed,
		"Error":  cause.Error(),
	})
	if err != nil {
		return "", err
	}
	return h.complete(ctx, msgs)
}

func (h *Structured) complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	out, err := h.completer.Complete(ctx, msgs, llm.Options{Temperature: llm.Temperature(0)})
	if err != nil {
		return "", err
	}
	query := parsers.CleanSQL(out)
	if query == "" {
		return "", errx.Execution(out, ErrEmptyQuery)
	}
	return query, nil
}

var _ Handler = (*Structured)(nil)
