package apply

import (
	"github.com/grid5000/chiropctl/pkg/header"
)

// Kind is the report kind for serialized apply reports.
const Kind = "ApplyReport"

// Report summarizes one reconciliation run for serialization.
type Report struct {
	header.Header `json:",inline" yaml:",inline"`

	Results []*Result `json:"results" yaml:"results"`
	Changed int       `json:"changed" yaml:"changed"`
}

// NewReport wraps apply results, counting how many changed the cluster.
func NewReport(results []*Result) *Report {
	r := &Report{Results: results}
	for _, res := range results {
		if res.Changed {
			r.Changed++
		}
	}
	r.Set(Kind)
	return r
}

// TableHeaders implements serializer.Tabler.
func (r *Report) TableHeaders() []string {
	return []string{"kind", "namespace", "name", "action"}
}

// TableRows implements serializer.Tabler.
func (r *Report) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		action := "unchanged"
		switch {
		case res.Created:
			action = "created"
		case res.Changed:
			action = "updated"
		}
		rows = append(rows, []string{res.Key.Kind, res.Key.Namespace, res.Key.Name, action})
	}
	return rows
}
