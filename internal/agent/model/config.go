package model

import "time"

// ================ Config ================
type MemoryConfig struct {
	MaxHistory       int           `envconfig:"MEMORY_MAX_HISTORY" default:"10"`
	ProfileThreshold int           `envconfig:"MEMORY_PROFILE_THRESHOLD" default:"5"`
	ContextTurns     int           `envconfig:"MEMORY_CONTEXT_TURNS" default:"4"`
	TurnCharBudget   int           `envconfig:"MEMORY_TURN_CHAR_BUDGET" default:"100"`
	SummaryTurnChars int           `envconfig:"MEMORY_SUMMARY_TURN_CHARS" default:"200"`
	Persist          bool          `envconfig:"MEMORY_PERSIST" default:"false"`
	TTL              time.Duration `envconfig:"MEMORY_TTL" default:"24h"`
}

type AgentConfig struct {
	MaxRetries           int           `envconfig:"AGENT_MAX_RETRIES" default:"2"`
	CallTimeout          time.Duration `envconfig:"AGENT_CALL_TIMEOUT" default:"30s"`
	ExperiencedThreshold int           `envconfig:"AGENT_EXPERIENCED_THRESHOLD" default:"5"`
	KnowledgeTopK        int           `envconfig:"AGENT_KNOWLEDGE_TOP_K" default:"10"`
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"50"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0.0"`
}

type SQLModelConfig struct {
	Model       string  `envconfig:"SQL_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SQL_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"SQL_TEMPERATURE" default:"0.0"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"300"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type SearchConfig struct {
	WebEnabled bool   `envconfig:"SEARCH_WEB_ENABLED" default:"true"`
	SearXNGURL string `envconfig:"SEARCH_SEARXNG_URL"`
}

// DatabaseConfig caps structured query results. Connection settings live in pkg/sqlite.
type DatabaseConfig struct {
	MaxResults   int           `envconfig:"DATABASE_MAX_RESULTS" default:"1000"`
	DisplayRows  int           `envconfig:"DATABASE_DISPLAY_ROWS" default:"100"`
	QueryTimeout time.Duration `envconfig:"DATABASE_QUERY_TIMEOUT" default:"15s"`
}

type HTTPConfig struct {
	Address     string `envconfig:"HTTP_ADDRESS" default:":8000"`
	CORSOrigins string `envconfig:"HTTP_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}
