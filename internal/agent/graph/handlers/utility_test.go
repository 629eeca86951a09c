package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-insight/server/internal/agent/llm/llmtest"
	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
)

func utilityInput(query string, interactions int) model.HandlerInput {
	p := model.NewProfile()
	p.InteractionCount = interactions
	return model.HandlerInput{Query: query, SessionID: "s1", Intent: model.IntentUtility, Profile: p}
}

func utilityText(t *testing.T, res model.HandlerResult) string {
	t.Helper()
	require.Nil(t, res.Err)
	require.NotNil(t, res.Output)
	require.Equal(t, model.OutputUtility, res.Output.Kind)
	return res.Output.Utility.Text
}

func TestUtilityGreeting(t *testing.T) {
	h := NewUtility(llmtest.New(), nil, nil)

	first := h.Handle(context.Background(), utilityInput("hello", 1))
	assert.Contains(t, utilityText(t, first), "Welcome to the E-commerce Intelligence Agent!")
	assert.Equal(t, "onboarding", first.Tags["greeting_tier"])
	assert.Equal(t, "greeting", first.Tags["utility_type"])

	second := h.Handle(context.Background(), utilityInput("hi there", 2))
	assert.True(t, len(utilityText(t, second)) > 0)
	assert.Contains(t, utilityText(t, second), "Hello again!")
	assert.Equal(t, "returning", second.Tags["greeting_tier"])

	in := utilityInput("hey", 8)
	in.Profile.TopicHistogram = map[string]int{"sales": 1, "delivery": 3}
	in.Profile.TopicOrder = []string{"sales", "delivery"}
	personal := h.Handle(context.Background(), in)
	assert.Contains(t, utilityText(t, personal), "Last time we were exploring delivery data")
	assert.Equal(t, "personalized", personal.Tags["greeting_tier"])
}

func TestUtilityFixedReplies(t *testing.T) {
	c := llmtest.New()
	h := NewUtility(c, nil, nil)
	h.now = func() time.Time { return time.Date(2018, 8, 29, 15, 4, 0, 0, time.UTC) }

	assert.Contains(t, utilityText(t, h.Handle(context.Background(), utilityInput("help", 1))), "Capabilities")
	assert.Equal(t, thanksReplies[3], utilityText(t, h.Handle(context.Background(), utilityInput("thanks!", 3))))
	assert.Contains(t, utilityText(t, h.Handle(context.Background(), utilityInput("what time is it now", 1))), "August 29, 2018")
	assert.Equal(t, deliveryLocationText, utilityText(t, h.Handle(context.Background(), utilityInput("where do orders ship", 1))))
	assert.Equal(t, locationText, utilityText(t, h.Handle(context.Background(), utilityInput("where are you", 1))))

	assert.Empty(t, c.Calls(""))
}

func TestUtilityDefinition(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		c := llmtest.New().On(llmtest.DefinePrompt, llmtest.Text("Share of visitors who buy."))
		res := NewUtility(c, nil, nil).Handle(context.Background(), utilityInput("define conversion rate?", 1))

		assert.Equal(t, "**Definition of 'conversion rate':**\n\nShare of visitors who buy.", utilityText(t, res))
		calls := c.Calls(llmtest.DefinePrompt)
		require.Len(t, calls, 1)
		assert.Equal(t, 150, calls[0].Opts.MaxTokens)
	})

	t.Run("model failure is terminal", func(t *testing.T) {
		c := llmtest.New().On(llmtest.DefinePrompt, llmtest.Fail(errx.Service("complete", context.DeadlineExceeded)))
		res := NewUtility(c, nil, nil).Handle(context.Background(), utilityInput("define churn", 1))

		require.NotNil(t, res.Err)
		assert.Nil(t, res.Output)
		assert.Equal(t, StageUtility, res.Err.Stage)
		assert.Equal(t, errx.KindTimeout, res.Err.Kind)
	})
}

func TestUtilityConversation(t *testing.T) {
	c := llmtest.New().On(llmtest.ConversePrompt, llmtest.Text("I'm doing great, thanks for asking!"))
	res := NewUtility(c, nil, nil).Handle(context.Background(), utilityInput("how are you doing", 1))
	assert.Equal(t, "I'm doing great, thanks for asking!", utilityText(t, res))
	assert.Equal(t, "conversation", res.Tags["utility_type"])

	failing := llmtest.New().On(llmtest.ConversePrompt, llmtest.Fail(errors.New("boom")))
	res = NewUtility(failing, nil, nil).Handle(context.Background(), utilityInput("how are you doing", 1))
	assert.Equal(t, conversationFallback, utilityText(t, res))
}

func TestDefinitionTerm(t *testing.T) {
	tests := map[string]string{
		"define AOV":                     "AOV",
		"Definition of churn rate?":      "churn rate",
		"what is GMV":                    "GMV",
		"o que é ticket médio":           "ticket médio",
		"tell me a joke":                 "",
		`what are "conversion funnels"?`: "conversion funnels",
	}
	for query, want := range tests {
		assert.Equal(t, want, DefinitionTerm(query), query)
	}
}
