// Package validation runs structural and statistical checks against an
// uploaded table and its inferred schema.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single validation finding. Findings are informational and
// never stop processing on their own.
type Issue struct {
	Severity   Severity `json:"severity"`
	Type       string   `json:"type"`
	Column     string   `json:"column,omitempty"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion"`
}

// Report aggregates the issues of one validation run.
type Report struct {
	IsValid     bool    `json:"is_valid"`
	TotalIssues int     `json:"total_issues"`
	Errors      int     `json:"errors"`
	Warnings    int     `json:"warnings"`
	Infos       int     `json:"infos"`
	Issues      []Issue `json:"issues"`
	Summary     string  `json:"summary"`
}

// NewReport counts issues by severity and writes the summary line.
func NewReport(issues []Issue) *Report {
	r := &Report{Issues: issues}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	for _, i := range r.Issues {
		switch i.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		case SeverityInfo:
			r.Infos++
		}
	}
	r.TotalIssues = r.Errors + r.Warnings + r.Infos
	r.IsValid = r.Errors == 0
	r.Summary = summarize(r)
	return r
}

// ByType returns the issues of the given type.
func (r *Report) ByType(typ string) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

// JSON returns the report encoded as JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}

func summarize(r *Report) string {
	var parts []string
	if r.Errors > 0 {
		parts = append(parts, plural(r.Errors, "error"))
	}
	if r.Warnings > 0 {
		parts = append(parts, plural(r.Warnings, "warning"))
	}
	if r.Infos > 0 {
		parts = append(parts, plural(r.Infos, "info"))
	}

	switch {
	case r.Errors > 0:
		return fmt.Sprintf("%s found; %d error(s) must be fixed before processing", strings.Join(parts, ", "), r.Errors)
	case len(parts) > 0:
		return fmt.Sprintf("%s found; file is valid", strings.Join(parts, ", "))
	default:
		return "Validation passed with no issues"
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
