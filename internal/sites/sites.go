// Package sites builds per-job action sequences for known job boards.
package sites

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/report"
	"github.com/rendis/browseract/pkg/schema"
)

// Adapter knows the page layout of one site.
type Adapter interface {
	Name() string
	// Build returns the requests that process job.
	Build(job schema.JobItem) []schema.ActionRequest
	// Fields maps job fields to the selectors Build extracts them from.
	Fields() report.FieldSelectors
}

// DemoConfig configures the demo adapter.
type DemoConfig struct {
	// QueryText is typed into #q before clicking #go.
	QueryText string                `json:"query_text" yaml:"query_text"`
	Fields    report.FieldSelectors `json:"fields" yaml:"fields"`
	// ApplyButton, when set, is clicked after the fields are extracted.
	ApplyButton string `json:"apply_button" yaml:"apply_button"`
	// SnapshotDir receives one full page screenshot per job.
	SnapshotDir string `json:"snapshot_dir" yaml:"snapshot_dir"`
}

// DefaultDemoConfig returns the settings matching the demo pages.
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		QueryText:   "hello",
		Fields:      report.DefaultFields,
		SnapshotDir: "artifacts",
	}
}

// Demo is the adapter for pages exposing #q, #go and one element per job field.
type Demo struct {
	cfg DemoConfig
}

// NewDemo creates a demo adapter. Zero fields of cfg take their defaults.
func NewDemo(cfg DemoConfig) *Demo {
	def := DefaultDemoConfig()
	if cfg.QueryText == "" {
		cfg.QueryText = def.QueryText
	}
	if cfg.Fields == (report.FieldSelectors{}) {
		cfg.Fields = def.Fields
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = def.SnapshotDir
	}
	return &Demo{cfg: cfg}
}

func (d *Demo) Name() string { return "demo" }

func (d *Demo) Fields() report.FieldSelectors { return d.cfg.Fields }

// Build opens the job, runs the demo search, extracts every configured field
// and ends with a snapshot.
func (d *Demo) Build(job schema.JobItem) []schema.ActionRequest {
	reqs := []schema.ActionRequest{
		schema.NewRequest(actions.ActionOpenURL, map[string]any{"url": job.URL}),
		schema.NewRequest(actions.ActionType, map[string]any{"selector": "#q", "text": d.cfg.QueryText}),
		schema.NewRequest(actions.ActionClick, map[string]any{"selector": "#go"}),
	}
	for _, sel := range []string{d.cfg.Fields.Company, d.cfg.Fields.Title, d.cfg.Fields.Salary, d.cfg.Fields.Location} {
		if sel == "" {
			continue
		}
		reqs = append(reqs, schema.NewRequest(actions.ActionExtractText, map[string]any{"selector": sel}))
	}
	if d.cfg.ApplyButton != "" {
		reqs = append(reqs, schema.NewRequest(actions.ActionClick, map[string]any{"selector": d.cfg.ApplyButton}))
	}
	reqs = append(reqs, schema.NewRequest(actions.ActionSnapshot, map[string]any{
		"path":      SnapshotPath(d.cfg.SnapshotDir, job.URL),
		"full_page": true,
	}))
	return reqs
}

// SnapshotPath names the screenshot of a job after its URL.
func SnapshotPath(dir, jobURL string) string {
	return filepath.Join(dir, "demo-"+slug(jobURL)+".png")
}

func slug(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 80 {
		out = out[:80]
	}
	if out == "" {
		return "job"
	}
	return out
}

// Lookup returns the adapter registered under name.
func Lookup(name string, demo DemoConfig) (Adapter, error) {
	switch name {
	case "demo", "":
		return NewDemo(demo), nil
	default:
		return nil, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the known sites.
func Names() []string {
	return []string{"demo"}
}
