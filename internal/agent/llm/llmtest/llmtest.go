// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-insight/server/internal/agent/llm"
)

// Fragments of the system prompts, used to route scripted replies.
const (
	RouterPrompt      = "query router"
	SQLGeneratePrompt = "expert SQL query generator"
	SQLFixPrompt      = "repair SQLite queries"
	NarratePrompt     = "data analyst"
	SummarizePrompt   = "summarise conversations"
	KnowledgePrompt   = "e-commerce expert"
	TranslatePrompt   = "translator specializing"
	DefinePrompt      = "explain business"
	ConversePrompt    = "helpful, friendly AI assistant"
)

// Reply produces the completion for the n-th (zero based) call of a route.
type Reply func(n int, msgs []*schema.Message) (string, error)

// Text always answers s.
func Text(s string) Reply {
	return func(int, []*schema.Message) (string, error) { return s, nil }
}

// Fail always answers err.
func Fail(err error) Reply {
	return func(int, []*schema.Message) (string, error) { return "", err }
}

// Sequence answers replies in order, repeating the last one.
func Sequence(replies ...string) Reply {
	return func(n int, _ []*schema.Message) (string, error) {
		if n >= len(replies) {
			n = len(replies) - 1
		}
		return replies[n], nil
	}
}

// Call is one recorded completion request.
type Call struct {
	System string
	User   string
	Opts   llm.Options
}

type route struct {
	fragment string
	reply    Reply
	calls    int
}

// Completer routes each call by a fragment of its system prompt. Unmatched
// calls go to Default, which answers "ok" when unset.
type Completer struct {
	mu      sync.Mutex
	routes  []*route
	Default Reply
	calls   []Call
}

func New() *Completer {
	return &Completer{}
}

// On registers reply for calls whose system prompt contains fragment.
func (c *Completer) On(fragment string, reply Reply) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append(c.routes, &route{fragment: fragment, reply: reply})
	return c
}

func (c *Completer) Complete(ctx context.Context, msgs []*schema.Message, opts llm.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var call Call
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			call.System = m.Content
		case schema.User:
			call.User = m.Content
		}
	}
	call.Opts = opts

	c.mu.Lock()
	c.calls = append(c.calls, call)
	var (
		reply Reply
		n     int
	)
	for _, r := range c.routes {
		if strings.Contains(call.System, r.fragment) {
			reply, n = r.reply, r.calls
			r.calls++
			break
		}
	}
	if reply == nil {
		reply = c.Default
	}
	c.mu.Unlock()

	if reply == nil {
		return "ok", nil
	}
	return reply(n, msgs)
}

// Calls returns the recorded calls whose system prompt contains fragment;
// an empty fragment returns every call.
func (c *Completer) Calls(fragment string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if strings.Contains(call.System, fragment) {
			out = append(out, call)
		}
	}
	return out
}

var _ llm.Completer = (*Completer)(nil)
