// Package report reduces step outcomes into job results and daily reports and
// writes them to disk.
package report

import (
	"time"

	"github.com/rendis/browseract/pkg/schema"
)

// FieldSelectors maps job fields to the extract_text selectors that fill them.
// An empty selector leaves the field untouched.
type FieldSelectors struct {
	Company  string `json:"company" yaml:"company"`
	Title    string `json:"title" yaml:"title"`
	Salary   string `json:"salary" yaml:"salary"`
	Location string `json:"location" yaml:"location"`
}

// DefaultFields are the selectors the demo site uses.
var DefaultFields = FieldSelectors{
	Company:  "#company",
	Title:    "#title",
	Salary:   "#salary",
	Location: "#location",
}

const extractAction = "extract_text"

// ApplyFromOutcomes reduces the outcomes of one job's run into an ApplyResult.
// OK is true only when every step succeeded, Error is the detail of the first
// failed step, and job fields are filled from successful extract_text steps
// whose selector matches fields.
func ApplyFromOutcomes(job schema.JobItem, outcomes []schema.StepOutcome, fields FieldSelectors) schema.ApplyResult {
	res := schema.ApplyResult{
		Job:   job,
		OK:    true,
		Steps: make([]schema.ApplyStep, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		selector, _ := o.Meta["selector"].(string)
		res.Steps = append(res.Steps, schema.ApplyStep{
			Index:        o.Index,
			Name:         o.Name,
			OK:           o.OK,
			Selector:     selector,
			Extracted:    o.Extracted,
			Meta:         o.Meta,
			ArtifactPath: o.ArtifactPath,
			Detail:       o.Detail,
		})

		if !o.OK {
			if res.OK {
				res.Error = o.Detail
			}
			res.OK = false
			continue
		}
		if o.Name != extractAction || o.Extracted == nil || selector == "" {
			continue
		}
		switch selector {
		case fields.Company:
			res.Job.Company = *o.Extracted
		case fields.Title:
			res.Job.Title = *o.Extracted
		case fields.Salary:
			res.Job.Salary = *o.Extracted
		case fields.Location:
			res.Job.Location = *o.Extracted
		}
	}
	return res
}

// NewDailyReport aggregates results for site.
func NewDailyReport(site, runID string, results []schema.ApplyResult) schema.DailyReport {
	rep := schema.DailyReport{
		Site:        site,
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Total:       len(results),
		Items:       results,
	}
	if rep.Items == nil {
		rep.Items = []schema.ApplyResult{}
	}
	for _, r := range results {
		if r.OK {
			rep.Success++
		} else {
			rep.Failure++
		}
	}
	return rep
}
