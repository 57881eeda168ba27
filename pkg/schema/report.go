package schema

// JobItem is a job posting the batch runner processes.
type JobItem struct {
	URL      string         `json:"url"`
	Company  string         `json:"company,omitempty"`
	Title    string         `json:"title,omitempty"`
	Salary   string         `json:"salary,omitempty"`
	Location string         `json:"location,omitempty"`
	Extras   map[string]any `json:"extras,omitempty"`
}

// ApplyStep is one step outcome as stored in a report.
type ApplyStep struct {
	Index        int            `json:"index"`
	Name         string         `json:"name"`
	OK           bool           `json:"ok"`
	Selector     string         `json:"selector,omitempty"`
	Extracted    *string        `json:"extracted,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Detail       string         `json:"detail"`
}

// ApplyResult is the outcome of processing one job.
type ApplyResult struct {
	Job   JobItem     `json:"job"`
	OK    bool        `json:"ok"`
	Steps []ApplyStep `json:"steps"`
	Error string      `json:"error,omitempty"`
}

// DailyReport aggregates the ApplyResults of one run.
type DailyReport struct {
	Site        string        `json:"site"`
	RunID       string        `json:"run_id,omitempty"`
	GeneratedAt string        `json:"generated_at,omitempty"`
	Total       int           `json:"total"`
	Success     int           `json:"success"`
	Failure     int           `json:"failure"`
	Items       []ApplyResult `json:"items"`
}
