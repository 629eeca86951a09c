package model

import (
	"fmt"
	"strings"
	"time"

	errx "github.com/Chative-insight/server/internal/core/error"
)

// SessionState stores per-query state for the orchestration graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex is required as long as it is never touched outside handlers.
//   - Handlers receive a HandlerInput copy via View and return a HandlerResult
//     patch; only the executor mutates the state.
type SessionState struct {
	initialized bool
	query       string
	sessionID   string

	intent         Intent
	fallback       bool
	fallbackReason string

	retryCount      int
	output          *HandlerOutput
	err             *HandlerError
	structuredQuery string
	chart           *Chart
	tags            map[string]any

	contextSnapshot string
	profile         Profile

	response  string
	responded bool

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput is the graph input assembled at the orchestrator boundary.
type QueryInput struct {
	SessionID       string  `json:"session_id"`
	Query           string  `json:"query"`
	ContextSnapshot string  `json:"-"`
	Profile         Profile `json:"-"`
}

// RouteDecision is the router node output.
type RouteDecision struct {
	Intent   Intent
	Fallback bool
	Reason   string
}

// HandlerInput is the read-only view a handler stage receives.
type HandlerInput struct {
	Query           string
	SessionID       string
	Intent          Intent
	ContextSnapshot string
	Profile         Profile
	RetryCount      int
	Previous        *HandlerOutput
}

// QueryResult is the externally visible outcome of ProcessQuery.
type QueryResult struct {
	SessionID              string         `json:"session_id"`
	Response               string         `json:"response"`
	Intent                 Intent         `json:"intent"`
	StructuredQuery        string         `json:"structured_query,omitempty"`
	Table                  *Table         `json:"result_data,omitempty"`
	Chart                  *Chart         `json:"chart,omitempty"`
	Error                  *HandlerError  `json:"error,omitempty"`
	ClassificationFallback bool           `json:"classification_fallback"`
	RetryCount             int            `json:"retry_count"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	Timestamp              time.Time      `json:"timestamp"`
}

func NewSessionState() *SessionState {
	return &SessionState{tags: map[string]any{}}
}

// Init populates the immutable fields. It may only be called once.
func (s *SessionState) Init(in QueryInput) error {
	if s.initialized {
		return fmt.Errorf("session state already initialized")
	}
	s.initialized = true
	s.query = in.Query
	s.sessionID = in.SessionID
	s.contextSnapshot = in.ContextSnapshot
	s.profile = in.Profile.Clone()
	return nil
}

func (s *SessionState) Query() string           { return s.query }
func (s *SessionState) SessionID() string       { return s.sessionID }
func (s *SessionState) Intent() Intent          { return s.intent }
func (s *SessionState) RetryCount() int         { return s.retryCount }
func (s *SessionState) Output() *HandlerOutput  { return s.output }
func (s *SessionState) Err() *HandlerError      { return s.err }
func (s *SessionState) Chart() *Chart           { return s.chart }
func (s *SessionState) ContextSnapshot() string { return s.contextSnapshot }
func (s *SessionState) Profile() Profile        { return s.profile }
func (s *SessionState) Fallback() bool          { return s.fallback }
func (s *SessionState) StructuredQuery() string { return s.structuredQuery }

// Response returns the composed answer and whether it has been set.
func (s *SessionState) Response() (string, bool) { return s.response, s.responded }

// SetIntent records the router decision. The intent is set exactly once; an
// invalid intent is treated as a classification fallback to DefaultIntent.
func (s *SessionState) SetIntent(d RouteDecision) (RouteDecision, error) {
	if s.intent != IntentUnset {
		return d, fmt.Errorf("intent already set to %q", s.intent)
	}
	if !d.Intent.Valid() {
		d = RouteDecision{
			Intent:   DefaultIntent,
			Fallback: true,
			Reason:   string(errx.KindUnknownIntent),
		}
	}
	s.intent = d.Intent
	s.fallback = d.Fallback
	s.fallbackReason = d.Reason
	return d, nil
}

// View returns the handler-facing copy of the state.
func (s *SessionState) View() HandlerInput {
	return HandlerInput{
		Query:           s.query,
		SessionID:       s.sessionID,
		Intent:          s.intent,
		ContextSnapshot: s.contextSnapshot,
		Profile:         s.profile.Clone(),
		RetryCount:      s.retryCount,
		Previous:        s.output,
	}
}

// Apply merges a handler patch. After Apply exactly one of output and err is set.
func (s *SessionState) Apply(r HandlerResult) {
	s.retryCount += r.Retries
	if r.StructuredQuery != "" {
		s.structuredQuery = r.StructuredQuery
	}
	for k, v := range r.Tags {
		s.tags[k] = v
	}
	switch {
	case r.Err != nil:
		s.err = r.Err
		s.output = nil
	case r.Output != nil:
		s.output = r.Output
		s.err = nil
	default:
		s.output = nil
		s.err = &HandlerError{Kind: errx.KindExecution, Stage: string(s.intent), Message: "handler returned no result"}
	}
}

func (s *SessionState) SetChart(c *Chart) {
	s.chart = c
}

func (s *SessionState) Tag(k string, v any) {
	s.tags[k] = v
}

// SetResponse records the composed answer. It may only be called once.
func (s *SessionState) SetResponse(text string, tags map[string]any) error {
	if s.responded {
		return fmt.Errorf("response already set")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("response is empty")
	}
	s.response = text
	s.responded = true
	for k, v := range tags {
		s.tags[k] = v
	}
	return nil
}

// Result builds the externally visible result from the final state.
func (s *SessionState) Result() *QueryResult {
	res := &QueryResult{
		SessionID:              s.sessionID,
		Response:               s.response,
		Intent:                 s.intent,
		StructuredQuery:        s.structuredQuery,
		Chart:                  s.chart,
		Error:                  s.err,
		ClassificationFallback: s.fallback,
		RetryCount:             s.retryCount,
		Metadata:               make(map[string]any, len(s.tags)+2),
		Timestamp:              time.Now().UTC(),
	}
	if s.output != nil && s.output.Kind == OutputTabular {
		res.Table = s.output.Table
	}
	for k, v := range s.tags {
		res.Metadata[k] = v
	}
	if s.fallback {
		res.Metadata["fallback_reason"] = s.fallbackReason
	}
	if s.TotalCostUSD > 0 {
		res.Metadata["usage_cost_total_usd"] = s.TotalCostUSD
	}
	return res
}
