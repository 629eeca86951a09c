// Package datasource executes structured-data queries against the SQLite
// e-commerce store.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Chative-insight/server/internal/agent/model"
	"github.com/Chative-insight/server/internal/core"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

var (
	// ErrNotReadOnly rejects statements other than SELECT / WITH ... SELECT.
	ErrNotReadOnly = errors.New("only read-only SELECT statements are allowed")
	// ErrEmptyQuery rejects blank input.
	ErrEmptyQuery = errors.New("empty query")
	// ErrMultipleStatements rejects stacked statements.
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
)

var mutating = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|vacuum|reindex)\b`)

// SQLiteExecutor implements model.StructuredExecutor and model.CategoryCatalog.
type SQLiteExecutor struct {
	db          *sql.DB
	maxResults  int
	displayRows int
	timeout     time.Duration
}

func NewSQLiteExecutor(db *sql.DB, cfg model.DatabaseConfig) *SQLiteExecutor {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 1000
	}
	if cfg.DisplayRows <= 0 || cfg.DisplayRows > cfg.MaxResults {
		cfg.DisplayRows = cfg.MaxResults
	}
	return &SQLiteExecutor{
		db:          db,
		maxResults:  cfg.MaxResults,
		displayRows: cfg.DisplayRows,
		timeout:     cfg.QueryTimeout,
	}
}

// CheckReadOnly validates that q is a single SELECT or WITH statement.
func CheckReadOnly(q string) error {
	q = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	if q == "" {
		return ErrEmptyQuery
	}
	if strings.Contains(q, ";") {
		return ErrMultipleStatements
	}
	head := strings.ToUpper(strings.TrimLeft(q, "( \t\n"))
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return ErrNotReadOnly
	}
	if mutating.MatchString(q) {
		return ErrNotReadOnly
	}
	return nil
}

func (e *SQLiteExecutor) RunStructuredQuery(ctx context.Context, query string) (*model.Table, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, errx.Execution(query, err)
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		logx.Warn().Err(err).Str("query", query).Msg("structured query failed")
		return nil, errx.Execution(query, err)
	}
	defer rows.Close()

	table, err := e.scan(rows)
	if err != nil {
		logx.Warn().Err(err).Str("query", query).Msg("structured query scan failed")
		return nil, errx.Execution(query, err)
	}

	logx.Debug().
		Int("row_count", table.RowCount).
		Int("columns", len(table.Columns)).
		Bool("truncated", table.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("structured query executed")
	return table, nil
}

// bounded applies the configured query timeout to ctx.
func (e *SQLiteExecutor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return core.WithTimeout(ctx, e.timeout)
}

func (e *SQLiteExecutor) scan(rows *sql.Rows) (*model.Table, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	table := &model.Table{Columns: make([]model.Column, len(colTypes)), Rows: [][]any{}}
	for i, ct := range colTypes {
		table.Columns[i] = model.Column{Name: ct.Name(), Type: strings.ToUpper(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		if table.RowCount >= e.maxResults {
			table.Truncated = true
			break
		}
		vals := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		table.RowCount++
		if len(table.Rows) < e.displayRows {
			table.Rows = append(table.Rows, vals)
		} else {
			table.Truncated = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range table.Columns {
		if table.Columns[i].Type == "" {
			table.Columns[i].Type = inferType(table.Rows, i)
		}
	}
	return table, nil
}

func inferType(rows [][]any, col int) string {
	for _, row := range rows {
		switch row[col].(type) {
		case int64, int:
			return "INTEGER"
		case float64:
			return "REAL"
		case string:
			return "TEXT"
		case time.Time:
			return "DATETIME"
		}
	}
	return ""
}

// ListTables returns user table names in alphabetical order.
func (e *SQLiteExecutor) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableCounts returns the row count of every user table.
func (e *SQLiteExecutor) TableCounts(ctx context.Context) (map[string]int64, error) {
	names, err := e.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	counts := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, strings.ReplaceAll(name, `"`, `""`))
		if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// LookupCategory finds categories whose Portuguese or English name matches term.
func (e *SQLiteExecutor) LookupCategory(ctx context.Context, term string) ([]model.CategoryName, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	like := "%" + strings.ToLower(term) + "%"
	rows, err := e.db.QueryContext(ctx, `
		SELECT product_category_name, COALESCE(product_category_name_english, '')
		FROM product_category_name_translation
		WHERE LOWER(product_category_name) = LOWER(?1)
		   OR LOWER(product_category_name_english) = LOWER(?1)
		   OR LOWER(product_category_name) LIKE ?2
		   OR LOWER(product_category_name_english) LIKE ?2
		ORDER BY CASE WHEN LOWER(product_category_name) = LOWER(?1)
		                OR LOWER(product_category_name_english) = LOWER(?1) THEN 0 ELSE 1 END,
		         product_category_name
		LIMIT 5`, term, like)
	if err != nil {
		return nil, errx.Execution("lookup category", err)
	}
	defer rows.Close()

	var out []model.CategoryName
	for rows.Next() {
		var c model.CategoryName
		if err := rows.Scan(&c.Portuguese, &c.English); err != nil {
			return nil, errx.Execution("lookup category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Execution("lookup category", err)
	}
	return out, nil
}

// CategoryInsights aggregates order volume and revenue for categories matching term.
func (e *SQLiteExecutor) CategoryInsights(ctx context.Context, term string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	like := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	rows, err := e.db.QueryContext(ctx, `
		SELECT COALESCE(t.product_category_name_english, p.product_category_name) AS category,
		       COUNT(DISTINCT oi.order_id) AS orders,
		       ROUND(SUM(oi.price), 2) AS revenue,
		       ROUND(AVG(oi.price), 2) AS avg_price
		FROM order_items oi
		JOIN products p ON oi.product_id = p.product_id
		LEFT JOIN product_category_name_translation t ON p.product_category_name = t.product_category_name
		WHERE LOWER(p.product_category_name) LIKE ?1
		   OR LOWER(t.product_category_name_english) LIKE ?1
		GROUP BY category
		ORDER BY revenue DESC
		LIMIT ?2`, like, limit)
	if err != nil {
		return nil, errx.Execution("category insights", err)
	}
	defer rows.Close()

	table, err := e.scan(rows)
	if err != nil {
		return nil, errx.Execution("category insights", err)
	}
	return table.Records(), nil
}

var (
	_ model.StructuredExecutor = (*SQLiteExecutor)(nil)
	_ model.CategoryCatalog    = (*SQLiteExecutor)(nil)
)
