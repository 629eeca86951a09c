package model

import (
	"context"
	"sort"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message in a session's history.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Clone returns a deep-enough copy: the metadata map is not shared.
func (t Turn) Clone() Turn {
	md := make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		md[k] = v
	}
	t.Metadata = md
	return t
}

// Profile aggregates per-session interaction statistics.
type Profile struct {
	InteractionCount int            `json:"interaction_count"`
	IntentHistogram  map[Intent]int `json:"intent_histogram"`
	TopicHistogram   map[string]int `json:"topic_histogram"`
	// TopicOrder records first-seen order of topics, used to break count ties.
	TopicOrder      []string  `json:"topic_order"`
	LastInteraction time.Time `json:"last_interaction_time"`
	UsesTranslation bool      `json:"uses_translation"`
}

func NewProfile() Profile {
	return Profile{
		IntentHistogram: map[Intent]int{},
		TopicHistogram:  map[string]int{},
	}
}

func (p Profile) Clone() Profile {
	out := p
	out.IntentHistogram = make(map[Intent]int, len(p.IntentHistogram))
	for k, v := range p.IntentHistogram {
		out.IntentHistogram[k] = v
	}
	out.TopicHistogram = make(map[string]int, len(p.TopicHistogram))
	for k, v := range p.TopicHistogram {
		out.TopicHistogram[k] = v
	}
	out.TopicOrder = append([]string(nil), p.TopicOrder...)
	return out
}

// TopTopics returns up to n topics by descending count, ties broken by first-seen order.
func (p Profile) TopTopics(n int) []string {
	topics := append([]string(nil), p.TopicOrder...)
	sort.SliceStable(topics, func(i, j int) bool {
		return p.TopicHistogram[topics[i]] > p.TopicHistogram[topics[j]]
	})
	if len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// SessionSnapshot is the serializable form of one session's memory entry.
type SessionSnapshot struct {
	SessionID      string    `json:"session_id"`
	Turns          []Turn    `json:"turns"`
	Profile        Profile   `json:"profile"`
	RollingSummary string    `json:"rolling_summary"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionStats summarises a session for the transport layer.
type SessionStats struct {
	TotalMessages    int            `json:"total_messages"`
	TotalInteraction int            `json:"total_interactions"`
	IntentHistogram  map[Intent]int `json:"intent_histogram"`
	TopicHistogram   map[string]int `json:"topic_histogram"`
	LastInteraction  time.Time      `json:"last_interaction"`
	HasSummary       bool           `json:"has_summary"`
}

// SessionRepository persists session snapshots outside the process.
type SessionRepository interface {
	// SaveSession stores the snapshot, replacing any previous one
	SaveSession(ctx context.Context, snap *SessionSnapshot) error

	// LoadSession returns the stored snapshot, or nil when none exists
	LoadSession(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	// DeleteSession removes the stored snapshot
	DeleteSession(ctx context.Context, sessionID string) error
}
