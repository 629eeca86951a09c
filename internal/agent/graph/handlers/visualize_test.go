package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-insight/server/internal/agent/model"
)

func table(cols []string, rows ...[]any) *model.Table {
	t := &model.Table{Rows: rows, RowCount: len(rows)}
	for _, c := range cols {
		t.Columns = append(t.Columns, model.Column{Name: c})
	}
	return t
}

func TestDetectChartType(t *testing.T) {
	many := make([][]any, 25)
	for i := range many {
		many[i] = []any{"c", int64(i), "x"}
	}

	tests := []struct {
		name  string
		table *model.Table
		want  model.ChartType
	}{
		{"nil", nil, model.ChartTable},
		{"single column", table([]string{"category"}, []any{"toys"}), model.ChartTable},
		{"temporal name", table([]string{"month", "revenue"}, []any{"2018-01", 10.0}, []any{"2018-02", 12.0}), model.ChartLine},
		{"temporal values", table([]string{"bucket", "orders"}, []any{"2018-01-03", int64(3)}), model.ChartLine},
		{"time values", table([]string{"bucket", "orders"}, []any{time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), int64(3)}), model.ChartLine},
		{"shares", table([]string{"payment_type", "pct"}, []any{"credit_card", 74.0}, []any{"boleto", 26.0}), model.ChartPie},
		{"two column counts", table([]string{"state", "orders"}, []any{"SP", int64(400)}, []any{"RJ", int64(120)}), model.ChartBar},
		{"numeric pair", table([]string{"price", "freight", "id"}, []any{10.0, 2.0, "a"}, []any{20.0, 4.0, "b"}), model.ChartScatter},
		{"category table", table([]string{"category", "sales_count", "total_revenue"},
			[]any{"furniture_decor", int64(3), 840.0}, []any{"toys", int64(1), 60.0}), model.ChartBar},
		{"too many rows", table([]string{"category", "n", "label"}, many...), model.ChartTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectChartType(tt.table))
		})
	}
}

func TestDetectChart(t *testing.T) {
	assert.Nil(t, DetectChart(nil))
	assert.Nil(t, DetectChart(&model.Table{Columns: []model.Column{{Name: "x"}}, Rows: [][]any{}}))

	bar := DetectChart(table([]string{"category", "sales_count", "total_revenue"},
		[]any{"furniture_decor", int64(3), 840.0},
		[]any{"computers_accessories", int64(2), 250.0},
	))
	require.NotNil(t, bar)
	assert.Equal(t, model.ChartBar, bar.Type)
	assert.Equal(t, "category", bar.XAxis)
	assert.Equal(t, "sales_count", bar.YAxis)
	assert.Len(t, bar.Data, 2)

	pie := DetectChart(table([]string{"payment_type", "pct"}, []any{"credit_card", 74.0}, []any{"boleto", 26.0}))
	require.NotNil(t, pie)
	assert.Equal(t, "payment_type", pie.Label)
	assert.Equal(t, "pct", pie.Value)
	assert.Empty(t, pie.XAxis)

	single := DetectChart(table([]string{"category"}, []any{"toys"}))
	require.NotNil(t, single)
	assert.Equal(t, model.ChartTable, single.Type)
	assert.Nil(t, single.Data)
}
