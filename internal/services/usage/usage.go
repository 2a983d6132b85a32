// Package usage turns the raw Copilot metrics feed into chart-ready series.
//
// Every function here is pure and safe for concurrent use.
package usage

import (
	"math"
	"sort"

	"github.com/huangang/copilot-metrics/internal/models"
	"github.com/samber/lo"
)

// DailyMetric is the aggregated completion volume of one feed record.
type DailyMetric struct {
	Day                 string  `json:"day"`
	TotalLinesSuggested int64   `json:"total_lines_suggested"`
	TotalLinesAccepted  int64   `json:"total_lines_accepted"`
	ActiveUsers         int64   `json:"active_users"`
	AcceptanceRate      float64 `json:"acceptance_rate"`
}

// UnknownLanguage labels completions reported without a language name.
const UnknownLanguage = "unknown"

// LanguageTotal is the accepted line count of one language across the feed.
type LanguageTotal struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Summary bundles both views plus the feed-wide totals.
type Summary struct {
	Daily               []DailyMetric   `json:"daily"`
	Languages           []LanguageTotal `json:"languages"`
	TotalLinesSuggested int64           `json:"total_lines_suggested"`
	TotalLinesAccepted  int64           `json:"total_lines_accepted"`
	AcceptanceRate      float64         `json:"acceptance_rate"`
}

// forEachLanguage calls fn for every editor/model/language leaf of a day.
// Missing levels contribute nothing.
func forEachLanguage(day *models.CopilotDayMetrics, fn func(lang *models.CompletionLanguage)) {
	if day == nil || day.IDECodeCompletions == nil {
		return
	}
	for i := range day.IDECodeCompletions.Editors {
		editor := &day.IDECodeCompletions.Editors[i]
		for j := range editor.Models {
			model := &editor.Models[j]
			for k := range model.Languages {
				fn(&model.Languages[k])
			}
		}
	}
}

// DailySeries emits one DailyMetric per record, ordered by day ascending.
// Records sharing a date are kept as separate entries.
func DailySeries(records []models.CopilotDayMetrics) []DailyMetric {
	series := make([]DailyMetric, 0, len(records))
	for i := range records {
		day := &records[i]

		var suggested, accepted int64
		forEachLanguage(day, func(lang *models.CompletionLanguage) {
			suggested = addCapped(suggested, lang.TotalCodeLinesSuggested)
			accepted = addCapped(accepted, lang.TotalCodeLinesAccepted)
		})

		series = append(series, DailyMetric{
			Day:                 day.Date,
			TotalLinesSuggested: suggested,
			TotalLinesAccepted:  accepted,
			ActiveUsers:         nonNegative(day.TotalActiveUsers),
			AcceptanceRate:      AcceptanceRate(accepted, suggested),
		})
	}

	// Dates are YYYY-MM-DD so lexical order is calendar order.
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Day < series[j].Day
	})
	return series
}

// LanguageRanking sums accepted lines per language over every record and
// returns the non-zero totals in descending order. Equal totals keep the order
// in which the languages were first seen. Unnamed languages are grouped under
// UnknownLanguage.
func LanguageRanking(records []models.CopilotDayMetrics) []LanguageTotal {
	var totals []LanguageTotal
	index := make(map[string]int)

	for i := range records {
		forEachLanguage(&records[i], func(lang *models.CompletionLanguage) {
			name := lang.Name
			if name == "" {
				name = UnknownLanguage
			}
			pos, seen := index[name]
			if !seen {
				pos = len(totals)
				index[name] = pos
				totals = append(totals, LanguageTotal{Name: name})
			}
			totals[pos].Value = addCapped(totals[pos].Value, lang.TotalCodeLinesAccepted)
		})
	}

	ranking := lo.Filter(totals, func(t LanguageTotal, _ int) bool {
		return t.Value > 0
	})
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Value > ranking[j].Value
	})
	return ranking
}

// OverallAcceptanceRate is the acceptance rate of the whole series.
func OverallAcceptanceRate(series []DailyMetric) float64 {
	return AcceptanceRate(totalAccepted(series), totalSuggested(series))
}

// AcceptanceRate returns accepted/suggested as a percentage in [0, 100].
// Nothing suggested yields 0.
func AcceptanceRate(accepted, suggested int64) float64 {
	if suggested <= 0 || accepted <= 0 {
		return 0
	}
	rate := float64(accepted) / float64(suggested) * 100
	if rate > 100 {
		return 100
	}
	return rate
}

// Summarize computes the daily series, the language ranking and the totals.
func Summarize(records []models.CopilotDayMetrics) Summary {
	daily := DailySeries(records)
	return Summary{
		Daily:               daily,
		Languages:           LanguageRanking(records),
		TotalLinesSuggested: totalSuggested(daily),
		TotalLinesAccepted:  totalAccepted(daily),
		AcceptanceRate:      OverallAcceptanceRate(daily),
	}
}

func totalSuggested(series []DailyMetric) int64 {
	return lo.Reduce(series, func(sum int64, d DailyMetric, _ int) int64 {
		return addCapped(sum, d.TotalLinesSuggested)
	}, 0)
}

func totalAccepted(series []DailyMetric) int64 {
	return lo.Reduce(series, func(sum int64, d DailyMetric, _ int) int64 {
		return addCapped(sum, d.TotalLinesAccepted)
	}, 0)
}

// addCapped adds a non-negative count to a running total, saturating at
// math.MaxInt64. Negative counts add nothing.
func addCapped(total, v int64) int64 {
	v = nonNegative(v)
	if total > math.MaxInt64-v {
		return math.MaxInt64
	}
	return total + v
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
