package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-insight/server/internal/agent/llm/llmtest"
	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
)

func structuredInput() model.HandlerInput {
	return model.HandlerInput{
		Query:           "Show me top categories by revenue",
		SessionID:       "s1",
		Intent:          model.IntentStructuredQuery,
		ContextSnapshot: "No previous context.",
	}
}

func TestStructuredSucceeds(t *testing.T) {
	c := llmtest.New().On(llmtest.SQLGeneratePrompt, llmtest.Text("```sql\nSELECT category FROM revenue_view\n```"))
	exec := &scriptedExecutor{tables: map[string]*model.Table{"revenue_view": categoryTable()}}

	res := NewStructured(c, exec, staticSchema{}, 2).Handle(context.Background(), structuredInput())

	require.Nil(t, res.Err)
	require.NotNil(t, res.Output)
	assert.Equal(t, model.OutputTabular, res.Output.Kind)
	assert.Equal(t, "SELECT category FROM revenue_view;", res.StructuredQuery)
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, []string{"SELECT category FROM revenue_view;"}, exec.queries)

	gen := c.Calls(llmtest.SQLGeneratePrompt)
	require.Len(t, gen, 1)
	assert.Contains(t, gen[0].System, "Table: orders")
	assert.NotContains(t, gen[0].User, "No previous context.")
	require.NotNil(t, gen[0].Opts.Temperature)
	assert.Zero(t, *gen[0].Opts.Temperature)
}

func TestStructuredRetryTerminates(t *testing.T) {
	c := llmtest.New().
		On(llmtest.SQLGeneratePrompt, llmtest.Text("SELECT broken FROM")).
		On(llmtest.SQLFixPrompt, llmtest.Text("SELECT still broken FROM"))
	exec := &scriptedExecutor{failWith: syntaxError}

	res := NewStructured(c, exec, staticSchema{}, 2).Handle(context.Background(), structuredInput())

	require.NotNil(t, res.Err)
	assert.Nil(t, res.Output)
	assert.Equal(t, errx.KindSyntax, res.Err.Kind)
	assert.Equal(t, StageExecute, res.Err.Stage)
	assert.Equal(t, 1, res.Retries)

	// one generation plus one corrective regeneration, never more
	assert.Len(t, c.Calls(llmtest.SQLGeneratePrompt), 1)
	assert.Len(t, c.Calls(llmtest.SQLFixPrompt), 1)
	assert.Len(t, exec.queries, 2)

	// the failure carries the latest error, not the first one
	assert.Contains(t, res.Err.Message, "SELECT still broken FROM")
	assert.Equal(t, "SELECT still broken FROM;", res.StructuredQuery)

	fix := c.Calls(llmtest.SQLFixPrompt)[0]
	assert.Contains(t, fix.User, "SELECT broken FROM;")
	assert.Contains(t, fix.User, "syntax error")
}

func TestStructuredSingleFixRegardlessOfMaxRetries(t *testing.T) {
	c := llmtest.New().
		On(llmtest.SQLGeneratePrompt, llmtest.Text("SELECT broken FROM")).
		On(llmtest.SQLFixPrompt, llmtest.Text("SELECT still broken FROM"))
	exec := &scriptedExecutor{failWith: syntaxError}

	res := NewStructured(c, exec, staticSchema{}, 5).Handle(context.Background(), structuredInput())

	require.NotNil(t, res.Err)
	assert.Equal(t, 1, res.Retries)
	assert.Len(t, c.Calls(llmtest.SQLFixPrompt), 1)
	assert.Len(t, exec.queries, 2)
}

func TestStructuredFixSucceeds(t *testing.T) {
	c := llmtest.New().
		On(llmtest.SQLGeneratePrompt, llmtest.Text("SELECT broken FROM")).
		On(llmtest.SQLFixPrompt, llmtest.Text("SELECT category FROM revenue_view"))
	exec := &scriptedExecutor{tables: map[string]*model.Table{"revenue_view": categoryTable()}, failWith: syntaxError}

	res := NewStructured(c, exec, staticSchema{}, 2).Handle(context.Background(), structuredInput())

	require.Nil(t, res.Err)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, "SELECT category FROM revenue_view;", res.StructuredQuery)
	assert.Equal(t, 3, res.Output.Table.RowCount)
}

func TestStructuredNoRetry(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		retryCount int
		failWith   func(string) error
		kind       errx.Kind
	}{
		{"non-syntax error", 2, 0, func(q string) error { return errx.Execution(q, errors.New("no such column: x")) }, errx.KindExecution},
		{"retries disabled", 0, 0, syntaxError, errx.KindSyntax},
		{"retries exhausted", 2, 2, syntaxError, errx.KindSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := llmtest.New().On(llmtest.SQLGeneratePrompt, llmtest.Text("SELECT x FROM orders"))
			exec := &scriptedExecutor{failWith: tt.failWith}
			in := structuredInput()
			in.RetryCount = tt.retryCount

			res := NewStructured(c, exec, staticSchema{}, tt.maxRetries).Handle(context.Background(), in)

			require.NotNil(t, res.Err)
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, 0, res.Retries)
			assert.Empty(t, c.Calls(llmtest.SQLFixPrompt))
			assert.Len(t, exec.queries, 1)
		})
	}
}

func TestStructuredGenerationFailure(t *testing.T) {
	t.Run("service timeout", func(t *testing.T) {
		c := llmtest.New().On(llmtest.SQLGeneratePrompt, llmtest.Fail(errx.Service("complete", context.DeadlineExceeded)))
		exec := &scriptedExecutor{}

		res := NewStructured(c, exec, staticSchema{}, 2).Handle(context.Background(), structuredInput())

		require.NotNil(t, res.Err)
		assert.Equal(t, StageGenerate, res.Err.Stage)
		assert.Equal(t, errx.KindTimeout, res.Err.Kind)
		assert.Empty(t, exec.queries)
	})

	t.Run("empty reply", func(t *testing.T) {
		c := llmtest.New().On(llmtest.SQLGeneratePrompt, llmtest.Text("```sql\n```"))
		res := NewStructured(c, &scriptedExecutor{}, staticSchema{}, 2).Handle(context.Background(), structuredInput())

		require.NotNil(t, res.Err)
		assert.Equal(t, StageGenerate, res.Err.Stage)
		assert.Contains(t, res.Err.Message, ErrEmptyQuery.Error())
	})

	t.Run("fix call fails", func(t *testing.T) {
		c := llmtest.New().
			On(llmtest.SQLGeneratePrompt, llmtest.Text("SELECT broken FROM")).
			On(llmtest.SQLFixPrompt, llmtest.Fail(errx.Service("complete", errors.New("503"))))
		res := NewStructured(c, &scriptedExecutor{failWith: syntaxError}, staticSchema{}, 2).Handle(context.Background(), structuredInput())

		require.NotNil(t, res.Err)
		assert.Equal(t, StageFix, res.Err.Stage)
		assert.Equal(t, errx.KindUnavailable, res.Err.Kind)
		assert.Equal(t, 1, res.Retries)
	})
}
