package model

import (
	"encoding/json"
	"fmt"

	errx "github.com/Chative-insight/server/internal/core/error"
)

// OutputKind discriminates the HandlerOutput union.
type OutputKind string

const (
	OutputTabular     OutputKind = "tabular"
	OutputKnowledge   OutputKind = "knowledge"
	OutputTranslation OutputKind = "translation"
	OutputUtility     OutputKind = "utility"
)

// HandlerOutput is the result a handler stage produces on success.
// Exactly one payload field matches Kind.
type HandlerOutput struct {
	Kind        OutputKind       `json:"kind"`
	Table       *Table           `json:"table,omitempty"`
	Knowledge   *KnowledgeBundle `json:"knowledge,omitempty"`
	Translation *Translation     `json:"translation,omitempty"`
	Utility     *UtilityText     `json:"utility,omitempty"`
}

func TabularOutput(t *Table) *HandlerOutput {
	return &HandlerOutput{Kind: OutputTabular, Table: t}
}

func KnowledgeOutput(k *KnowledgeBundle) *HandlerOutput {
	return &HandlerOutput{Kind: OutputKnowledge, Knowledge: k}
}

func TranslationOutput(t *Translation) *HandlerOutput {
	return &HandlerOutput{Kind: OutputTranslation, Translation: t}
}

func UtilityOutput(u *UtilityText) *HandlerOutput {
	return &HandlerOutput{Kind: OutputUtility, Utility: u}
}

// Text returns the user-facing text carried by non-tabular outputs.
func (o *HandlerOutput) Text() string {
	if o == nil {
		return ""
	}
	switch o.Kind {
	case OutputKnowledge:
		if o.Knowledge != nil {
			return o.Knowledge.Answer
		}
	case OutputTranslation:
		if o.Translation != nil {
			return o.Translation.Text
		}
	case OutputUtility:
		if o.Utility != nil {
			return o.Utility.Text
		}
	}
	return ""
}

// ================ Tabular ================

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a structured-data query result. Rows hold at most the display cap;
// RowCount is the number of rows the query produced before capping.
type Table struct {
	Columns   []Column
	Rows      [][]any
	RowCount  int
	Truncated bool
}

func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Records converts rows to column-keyed maps.
func (t *Table) Records() []map[string]any {
	if t == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				rec[c.Name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Columns     []Column         `json:"columns"`
		Data        []map[string]any `json:"data"`
		RowCount    int              `json:"row_count"`
		ColumnCount int              `json:"column_count"`
		Truncated   bool             `json:"truncated"`
	}{
		Columns:     t.Columns,
		Data:        t.Records(),
		RowCount:    t.RowCount,
		ColumnCount: len(t.Columns),
		Truncated:   t.Truncated,
	})
}

// ================ Chart ================

type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartScatter ChartType = "scatter"
	ChartTable   ChartType = "table"
)

// Chart is a renderer-agnostic chart description.
type Chart struct {
	Type  ChartType        `json:"type"`
	XAxis string           `json:"x_axis,omitempty"`
	YAxis string           `json:"y_axis,omitempty"`
	Label string           `json:"label,omitempty"`
	Value string           `json:"value,omitempty"`
	Data  []map[string]any `json:"data,omitempty"`
}

// ================ Knowledge ================

// Snippet is one ranked search hit.
type Snippet struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type KnowledgeBundle struct {
	Answer   string           `json:"answer"`
	Snippets []Snippet        `json:"snippets,omitempty"`
	Insights []map[string]any `json:"insights,omitempty"`
}

// ================ Translation / Utility ================

type Translation struct {
	Source         string `json:"source"`
	Text           string `json:"text"`
	FromDictionary bool   `json:"from_dictionary"`
}

type UtilityKind string

const (
	UtilityGreeting     UtilityKind = "greeting"
	UtilityHelp         UtilityKind = "help"
	UtilityDefinition   UtilityKind = "definition"
	UtilityTime         UtilityKind = "time"
	UtilityThanks       UtilityKind = "thanks"
	UtilityLocation     UtilityKind = "location"
	UtilityConversation UtilityKind = "conversation"
)

type UtilityText struct {
	Kind UtilityKind `json:"kind"`
	Text string      `json:"text"`
}

// ================ Errors & patches ================

// HandlerError is the structured terminal failure of a handler stage.
type HandlerError struct {
	Kind    errx.Kind `json:"kind"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

func (e *HandlerError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Stage, e.Kind, e.Message)
}

// NewHandlerError builds a HandlerError from err, deriving the kind from the chain.
func NewHandlerError(stage string, err error) *HandlerError {
	return &HandlerError{Kind: errx.KindOf(err), Stage: stage, Message: err.Error()}
}

// HandlerResult is the patch a handler returns; the executor merges it into
// SessionState. Exactly one of Output and Err is expected.
type HandlerResult struct {
	Output          *HandlerOutput
	Err             *HandlerError
	StructuredQuery string
	Retries         int
	Tags            map[string]any
}

func Succeeded(out *HandlerOutput) HandlerResult {
	return HandlerResult{Output: out}
}

func Failed(err *HandlerError) HandlerResult {
	return HandlerResult{Err: err}
}
