package model

import "context"

// StructuredExecutor runs a read-only structured-data query.
type StructuredExecutor interface {
	RunStructuredQuery(ctx context.Context, query string) (*Table, error)
}

// CategoryName pairs a catalog category with its English name.
type CategoryName struct {
	Portuguese string `json:"portuguese"`
	English    string `json:"english"`
}

// CategoryCatalog answers parameterized lookups over the product categories.
type CategoryCatalog interface {
	LookupCategory(ctx context.Context, term string) ([]CategoryName, error)
	CategoryInsights(ctx context.Context, term string, limit int) ([]map[string]any, error)
}

// SchemaSource describes the structured data for query generation prompts.
type SchemaSource interface {
	SchemaDescription() string
	ExampleQueries() string
}
