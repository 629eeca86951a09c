package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
)

// scriptedExecutor answers queries containing a key with the mapped table;
// anything else fails with failWith.
type scriptedExecutor struct {
	mu       sync.Mutex
	tables   map[string]*model.Table
	failWith func(query string) error
	queries  []string
}

func (e *scriptedExecutor) RunStructuredQuery(_ context.Context, query string) (*model.Table, error) {
	e.mu.Lock()
	e.queries = append(e.queries, query)
	e.mu.Unlock()
	for key, t := range e.tables {
		if strings.Contains(query, key) {
			return t, nil
		}
	}
	if e.failWith != nil {
		return nil, e.failWith(query)
	}
	return nil, errx.Execution(query, errors.New("no such table: nowhere"))
}

func syntaxError(query string) error {
	return errx.Execution(query, fmt.Errorf("near %q: syntax error", query))
}

type staticSchema struct{}

func (staticSchema) SchemaDescription() string { return "Table: orders\nColumns: order_id" }
func (staticSchema) ExampleQueries() string    { return "Example 1:\nSQL: SELECT 1;" }

type fakeCatalog struct {
	names    map[string][]model.CategoryName
	insights map[string][]map[string]any
	err      error
}

func (c *fakeCatalog) LookupCategory(_ context.Context, term string) ([]model.CategoryName, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.names[term], nil
}

func (c *fakeCatalog) CategoryInsights(_ context.Context, term string, _ int) ([]map[string]any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.insights[term], nil
}

type fakeSearcher struct {
	snippets []model.Snippet
	err      error
}

func (s *fakeSearcher) Search(context.Context, string, int) ([]model.Snippet, error) {
	return s.snippets, s.err
}

func categoryTable() *model.Table {
	return &model.Table{
		Columns: []model.Column{{Name: "category", Type: "TEXT"}, {Name: "total_revenue", Type: "REAL"}},
		Rows: [][]any{
			{"furniture_decor", 840.0},
			{"computers_accessories", 250.0},
			{"sports_leisure", 95.0},
		},
		RowCount: 3,
	}
}
