package model

import "strings"

// Intent is the classified category of a query.
type Intent string

const (
	IntentUnset           Intent = ""
	IntentStructuredQuery Intent = "structured_query"
	IntentKnowledgeSearch Intent = "knowledge_search"
	IntentTranslation     Intent = "translation"
	IntentUtility         Intent = "utility"
)

// DefaultIntent is used whenever classification cannot produce a valid intent.
// Structured lookups never mutate external state.
const DefaultIntent = IntentStructuredQuery

// Intents lists the closed set in routing order.
var Intents = []Intent{
	IntentStructuredQuery,
	IntentKnowledgeSearch,
	IntentTranslation,
	IntentUtility,
}

func (i Intent) String() string {
	return string(i)
}

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	for _, v := range Intents {
		if i == v {
			return true
		}
	}
	return false
}

// ParseIntent matches v against the closed set after trimming and lower-casing.
func ParseIntent(v string) (Intent, bool) {
	in := Intent(strings.ToLower(strings.TrimSpace(v)))
	if !in.Valid() {
		return IntentUnset, false
	}
	return in, true
}
