package usage

import (
	"github.com/huangang/copilot-metrics/internal/models"
	"github.com/tidwall/gjson"
)

// ParseFeed decodes a raw metrics payload without ever failing. The feed shape
// is controlled by the vendor, so anything that is not where it is expected
// (a non-array document, an object in place of a list, a string in place of a
// number) is read as absent instead of rejecting the whole payload.
func ParseFeed(raw []byte) []models.CopilotDayMetrics {
	if !gjson.ValidBytes(raw) {
		return []models.CopilotDayMetrics{}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return []models.CopilotDayMetrics{}
	}

	days := make([]models.CopilotDayMetrics, 0, len(doc.Array()))
	for _, item := range doc.Array() {
		if !item.IsObject() {
			continue
		}
		days = append(days, parseDay(item))
	}
	return days
}

func parseDay(item gjson.Result) models.CopilotDayMetrics {
	day := models.CopilotDayMetrics{
		Date:              str(item.Get("date")),
		TotalActiveUsers:  num(item.Get("total_active_users")),
		TotalEngagedUsers: num(item.Get("total_engaged_users")),
	}

	completions := item.Get("copilot_ide_code_completions")
	if !completions.IsObject() {
		return day
	}
	day.IDECodeCompletions = &models.IDECodeCompletions{
		TotalEngagedUsers: num(completions.Get("total_engaged_users")),
	}
	for _, e := range list(completions.Get("editors")) {
		editor := models.CompletionEditor{
			Name:              str(e.Get("name")),
			TotalEngagedUsers: num(e.Get("total_engaged_users")),
		}
		for _, m := range list(e.Get("models")) {
			model := models.CompletionModel{
				Name:              str(m.Get("name")),
				IsCustomModel:     m.Get("is_custom_model").Bool(),
				TotalEngagedUsers: num(m.Get("total_engaged_users")),
			}
			for _, l := range list(m.Get("languages")) {
				model.Languages = append(model.Languages, models.CompletionLanguage{
					Name:                    str(l.Get("name")),
					TotalEngagedUsers:       num(l.Get("total_engaged_users")),
					TotalCodeSuggestions:    num(l.Get("total_code_suggestions")),
					TotalCodeAcceptances:    num(l.Get("total_code_acceptances")),
					TotalCodeLinesSuggested: num(l.Get("total_code_lines_suggested")),
					TotalCodeLinesAccepted:  num(l.Get("total_code_lines_accepted")),
				})
			}
			editor.Models = append(editor.Models, model)
		}
		day.IDECodeCompletions.Editors = append(day.IDECodeCompletions.Editors, editor)
	}
	return day
}

// list returns the object elements of an array value; anything else is empty.
func list(v gjson.Result) []gjson.Result {
	if !v.IsArray() {
		return nil
	}
	var out []gjson.Result
	for _, el := range v.Array() {
		if el.IsObject() {
			out = append(out, el)
		}
	}
	return out
}

func num(v gjson.Result) int64 {
	switch v.Type {
	case gjson.Number, gjson.String:
		n := v.Int()
		if n < 0 {
			return 0
		}
		return n
	default:
		return 0
	}
}

func str(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
