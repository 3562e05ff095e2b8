// Package diagnose runs an ordered, read-only checklist against the
// deployed power-monitoring stack and produces a structured report. Checks
// execute strictly in sequence; a failed check never aborts the run, and a
// check whose prerequisite data is absent is marked skipped rather than
// failed.
package diagnose

import (
	"strconv"
	"time"

	"github.com/grid5000/chiropctl/pkg/header"
)

const (
	// APIVersion for diagnostic reports.
	APIVersion = "chirop.grid5000.fr/v1"

	// Kind for diagnostic reports.
	Kind = "DiagnosticReport"
)

// Verdict is the state of one check.
type Verdict string

const (
	VerdictPending Verdict = "pending"
	VerdictRunning Verdict = "running"
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
	VerdictSkipped Verdict = "skipped"
)

// Status is the overall outcome of a run.
type Status string

const (
	// StatusPass: every executed check passed.
	StatusPass Status = "pass"
	// StatusFail: at least one check failed.
	StatusFail Status = "fail"
	// StatusPartial: nothing failed but some checks were skipped.
	StatusPartial Status = "partial"
)

// CheckResult records the outcome of one check.
type CheckResult struct {
	Order       int     `json:"order" yaml:"order"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Verdict     Verdict `json:"verdict" yaml:"verdict"`

	// Message explains a non-passed verdict.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Hint is the remediation guidance for a failed check.
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Summary aggregates the verdicts of a run.
type Summary struct {
	Total    int           `json:"total" yaml:"total"`
	Passed   int           `json:"passed" yaml:"passed"`
	Failed   int           `json:"failed" yaml:"failed"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Status   Status        `json:"status" yaml:"status"`
}

// Report is the terminal output of a diagnostic run.
type Report struct {
	header.Header `json:",inline" yaml:",inline"`

	// ID uniquely identifies this run.
	ID string `json:"id" yaml:"id"`

	// Namespace of the exporter under diagnosis.
	Namespace string `json:"namespace" yaml:"namespace"`

	Results []CheckResult `json:"results" yaml:"results"`
	Summary Summary       `json:"summary" yaml:"summary"`
}

// TableHeaders implements serializer.Tabler.
func (r *Report) TableHeaders() []string {
	return []string{"order", "check", "verdict", "message"}
}

// TableRows implements serializer.Tabler.
func (r *Report) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, cr := range r.Results {
		msg := cr.Message
		if cr.Verdict == VerdictFailed && cr.Hint != "" {
			msg += " (hint: " + cr.Hint + ")"
		}
		rows = append(rows, []string{
			strconv.Itoa(cr.Order), cr.Name, string(cr.Verdict), msg,
		})
	}
	return rows
}
