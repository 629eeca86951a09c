// Package prompts renders the embedded prompt templates through the Eino
// prompt component so prompt callbacks fire for every rendering.
package prompts

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/*.txt
var templates embed.FS

// Name identifies a system/user template pair under template/.
type Name string

const (
	Router      Name = "router"
	SQLGenerate Name = "sql_generate"
	SQLFix      Name = "sql_fix"
	Narrate     Name = "narrate"
	Summarize   Name = "summarize"
	Knowledge   Name = "knowledge"
	Translate   Name = "translate"
	Define      Name = "define"
	Converse    Name = "converse"
)

func load(name Name, part string) (string, error) {
	b, err := templates.ReadFile(fmt.Sprintf("template/%s.%s.txt", name, part))
	if err != nil {
		return "", fmt.Errorf("load %s %s template: %w", name, part, err)
	}
	return string(b), nil
}

// Render formats the named template pair with vars and returns the system and
// user messages ready for a completion call.
func Render(ctx context.Context, name Name, vars map[string]any) ([]*schema.Message, error) {
	system, err := load(name, "system")
	if err != nil {
		return nil, err
	}
	user, err := load(name, "user")
	if err != nil {
		return nil, err
	}

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      string(name),
		Type:      "ChatTemplate",
		Component: components.ComponentOfPrompt,
	})
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}
