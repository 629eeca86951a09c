package handlers

import (
	"regexp"
	"strings"
	"time"

	"github.com/Chative-insight/server/internal/agent/model"
)

var temporalValue = regexp.MustCompile(`^\d{4}-\d{2}(-\d{2})?([ T]\d{2}:\d{2}(:\d{2})?)?`)

var temporalNames = []string{"date", "time", "year", "month"}

// DetectChart derives a chart description from a tabular result. It never
// fails: a nil or empty table yields nil.
func DetectChart(t *model.Table) *model.Chart {
	if t.Empty() {
		return nil
	}
	chartType := DetectChartType(t)
	cols := t.ColumnNames()
	chart := &model.Chart{Type: chartType}
	if chartType == model.ChartTable {
		return chart
	}

	x, y := cols[0], cols[0]
	if len(cols) > 1 {
		y = cols[1]
	}
	chart.Data = t.Records()
	if chartType == model.ChartPie {
		chart.Label, chart.Value = x, y
	} else {
		chart.XAxis, chart.YAxis = x, y
	}
	return chart
}

// DetectChartType picks the chart kind for t:
//   - fewer than two columns: table
//   - temporal first column (by name or value): line
//   - up to ten rows, two columns, numeric second: pie when it sums to 90..110, else bar
//   - numeric first and second columns: scatter
//   - up to twenty rows: bar
//   - otherwise table
func DetectChartType(t *model.Table) model.ChartType {
	if t.Empty() || len(t.Columns) < 2 {
		return model.ChartTable
	}

	if isTemporalName(t.Columns[0].Name) || isTemporalColumn(t.Rows, 0) {
		return model.ChartLine
	}

	rows := len(t.Rows)
	if rows <= 10 && len(t.Columns) == 2 {
		if sum, ok := numericSum(t.Rows, 1); ok {
			if sum >= 90 && sum <= 110 {
				return model.ChartPie
			}
			return model.ChartBar
		}
	}

	if _, ok := numericSum(t.Rows, 0); ok {
		if _, ok := numericSum(t.Rows, 1); ok {
			return model.ChartScatter
		}
	}

	if rows <= 20 {
		return model.ChartBar
	}
	return model.ChartTable
}

func isTemporalName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range temporalNames {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isTemporalColumn(rows [][]any, col int) bool {
	seen := false
	for _, row := range rows {
		switch v := row[col].(type) {
		case nil:
			continue
		case time.Time:
			seen = true
		case string:
			if !temporalValue.MatchString(v) {
				return false
			}
			seen = true
		default:
			return false
		}
	}
	return seen
}

// numericSum sums column col; ok is false unless every non-null value is
// numeric and at least one is present.
func numericSum(rows [][]any, col int) (float64, bool) {
	var (
		sum  float64
		seen bool
	)
	for _, row := range rows {
		if col >= len(row) {
			return 0, false
		}
		switch v := row[col].(type) {
		case nil:
			continue
		case int64:
			sum += float64(v)
		case int:
			sum += float64(v)
		case int32:
			sum += float64(v)
		case float64:
			sum += v
		case float32:
			sum += float64(v)
		default:
			return 0, false
		}
		seen = true
	}
	return sum, seen
}
