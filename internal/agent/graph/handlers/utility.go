package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Chative-insight/server/internal/agent/graph/prompts"
	"github.com/Chative-insight/server/internal/agent/graph/router"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/model"
	logx "github.com/Chative-insight/server/pkg/logger"
)

const StageUtility = "utility"

const onboardingGreeting = `Hello! 👋 Welcome to the E-commerce Intelligence Agent!

I'm here to help you analyze Brazilian e-commerce data and answer your questions. I can:

📊 **Analyze Data**: Query sales, orders, customers, products, and reviews
🔍 **Search Knowledge**: Find information about products and categories
🌐 **Translate**: Convert Portuguese category names to English
📍 **Provide Insights**: Help you understand trends and patterns

What would you like to explore today?`

const returningGreeting = `Hello again! 👋

Welcome back! I see you've been exploring the data. What would you like to know today?`

const helpText = `🤖 **E-commerce Intelligence Agent - Capabilities**

**📊 Data Analysis**
- Sales trends and revenue analysis
- Top products and categories
- Customer behavior patterns
- Delivery time analysis

**🔍 Knowledge Search**
- Product category information
- Market trends and insights

**🌐 Translation**
- Portuguese ↔ English category names

**Example Queries:**
- "Show me top 10 products by revenue"
- "What's the average delivery time?"
- "Translate 'cama_mesa_banho' to English"
- "Tell me about furniture products"

Just ask me anything!`

const deliveryLocationText = `📍 **Location & Delivery Information**

I can help you analyze:
- Geographic distribution of orders
- Delivery times by region
- Top cities for orders

Try asking:
- "Show orders by state"
- "Which cities have the most orders?"
- "Average delivery time by state"`

const locationText = `📍 **Location Queries**

The dataset covers Brazilian customers and sellers by city, state and zip code prefix.
Try asking "Where are most customers from?" or "Show sellers by state".`

const conversationFallback = "I'm here to help you explore the e-commerce data. You can ask about sales, products, customers, deliveries or reviews. What would you like to know?"

var thanksReplies = []string{
	"You're welcome! 😊 Happy to help! Anything else you'd like to know?",
	"My pleasure! Feel free to ask if you need anything else!",
	"Glad I could help! What else can I do for you?",
	"You're welcome! I'm here whenever you need data insights! 📊",
}

var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)define\s+(.+)`),
	regexp.MustCompile(`(?i)definition\s+of\s+(.+)`),
	regexp.MustCompile(`(?i)what\s+is\s+(.+)`),
	regexp.MustCompile(`(?i)what\s+are\s+(.+)`),
	regexp.MustCompile(`(?i)o\s+que\s+é\s+(.+)`),
}

// Utility answers utility intents: greetings, help, definitions, date and
// time, thanks, location guidance and small talk.
type Utility struct {
	completer llm.Completer
	greeting  router.GreetingPolicy
	policy    router.UtilityPolicy
	now       func() time.Time
}

func NewUtility(c llm.Completer, greeting router.GreetingPolicy, policy router.UtilityPolicy) *Utility {
	if greeting == nil {
		greeting = router.TieredGreeting{}
	}
	if policy == nil {
		policy = router.DefaultUtilityPolicy()
	}
	return &Utility{completer: c, greeting: greeting, policy: policy, now: time.Now}
}

func (h *Utility) Handle(ctx context.Context, in model.HandlerInput) model.HandlerResult {
	kind := h.policy.DetectUtilityKind(in.Query)

	var (
		text string
		tags = map[string]any{"utility_type": string(kind)}
	)
	switch kind {
	case model.UtilityGreeting:
		tier := h.greeting.DetectGreetingTier(in.Profile.InteractionCount - 1)
		tags["greeting_tier"] = tier.String()
		text = greet(tier, in.Profile)
	case model.UtilityHelp:
		text = helpText
	case model.UtilityDefinition:
		var err error
		if text, err = h.define(ctx, in.Query); err != nil {
			return model.Failed(model.NewHandlerError(StageUtility, err))
		}
	case model.UtilityTime:
		text = timeText(h.now())
	case model.UtilityThanks:
		text = thanksReplies[in.Profile.InteractionCount%len(thanksReplies)]
	case model.UtilityLocation:
		text = locationReply(in.Query)
	default:
		text = h.converse(ctx, in)
	}

	return model.HandlerResult{
		Output: model.UtilityOutput(&model.UtilityText{Kind: kind, Text: text}),
		Tags:   tags,
	}
}

func greet(tier router.GreetingTier, p model.Profile) string {
	switch tier {
	case router.TierOnboarding:
		return onboardingGreeting
	case router.TierReturning:
		return returningGreeting
	}
	if top := p.TopTopics(1); len(top) > 0 {
		return fmt.Sprintf("Welcome back! 👋\n\nGreat to see you again! Last time we were exploring %s data. Would you like to continue, or shall we look at something new?", top[0])
	}
	return "Welcome back! 👋 Ready to dive into more data insights?"
}

// DefinitionTerm extracts the term a definition request asks about.
func DefinitionTerm(query string) string {
	for _, re := range definitionPatterns {
		if m := re.FindStringSubmatch(query); m != nil {
			return strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), "?!.\"'"))
		}
	}
	return ""
}

func (h *Utility) define(ctx context.Context, query string) (string, error) {
	term := DefinitionTerm(query)
	if term == "" {
		return "I'd be happy to define something for you! What term would you like me to explain?", nil
	}
	msgs, err := prompts.Render(ctx, prompts.Define, map[string]any{"Term": term})
	if err != nil {
		return "", err
	}
	def, err := h.completer.Complete(ctx, msgs, llm.Options{Temperature: llm.Temperature(0.3), MaxTokens: 150})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**Definition of '%s':**\n\n%s", term, def), nil
}

func timeText(now time.Time) string {
	return fmt.Sprintf("⏰ **Current Date & Time**\n\n📅 Date: %s\n🕐 Time: %s\n📆 Day: %s\n\nIs there anything specific you'd like to know about dates in the dataset?",
		now.Format("January 02, 2006"), now.Format("03:04 PM"), now.Format("Monday"))
}

func locationReply(query string) string {
	lower := strings.ToLower(query)
	for _, kw := range []string{"order", "delivery", "shipping"} {
		if strings.Contains(lower, kw) {
			return deliveryLocationText
		}
	}
	return locationText
}

// converse is best effort: a failed completion yields the templated reply.
func (h *Utility) converse(ctx context.Context, in model.HandlerInput) string {
	msgs, err := prompts.Render(ctx, prompts.Converse, map[string]any{
		"Context": promptContext(in.ContextSnapshot),
		"Query":   in.Query,
	})
	if err != nil {
		return conversationFallback
	}
	out, err := h.completer.Complete(ctx, msgs, llm.Options{Temperature: llm.Temperature(0.7), MaxTokens: 300})
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("conversation completion failed; using template")
		return conversationFallback
	}
	return out
}

var _ Handler = (*Utility)(nil)
