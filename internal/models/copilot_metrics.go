package models

// CopilotDayMetrics is one day of the GitHub Copilot organization metrics feed
// (GET /orgs/{org}/copilot/metrics). Only the IDE code completion branch is
// modeled; any level of it may be missing in the upstream payload.
type CopilotDayMetrics struct {
	Date               string              `json:"date"`
	TotalActiveUsers   int64               `json:"total_active_users"`
	TotalEngagedUsers  int64               `json:"total_engaged_users"`
	IDECodeCompletions *IDECodeCompletions `json:"copilot_ide_code_completions,omitempty"`
}

// IDECodeCompletions groups completion usage by editor.
type IDECodeCompletions struct {
	TotalEngagedUsers int64              `json:"total_engaged_users"`
	Editors           []CompletionEditor `json:"editors,omitempty"`
}

type CompletionEditor struct {
	Name              string            `json:"name"`
	TotalEngagedUsers int64             `json:"total_engaged_users"`
	Models            []CompletionModel `json:"models,omitempty"`
}

type CompletionModel struct {
	Name              string               `json:"name"`
	IsCustomModel     bool                 `json:"is_custom_model"`
	TotalEngagedUsers int64                `json:"total_engaged_users"`
	Languages         []CompletionLanguage `json:"languages,omitempty"`
}

// CompletionLanguage is a leaf of the completion tree.
type CompletionLanguage struct {
	Name                    string `json:"name"`
	TotalEngagedUsers       int64  `json:"total_engaged_users"`
	TotalCodeSuggestions    int64  `json:"total_code_suggestions"`
	TotalCodeAcceptances    int64  `json:"total_code_acceptances"`
	TotalCodeLinesSuggested int64  `json:"total_code_lines_suggested"`
	TotalCodeLinesAccepted  int64  `json:"total_code_lines_accepted"`
}
