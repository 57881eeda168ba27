package schema

// ActionRequest is one named unit of work read from a script file or built by a
// site adapter. It is not modified once built.
type ActionRequest struct {
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args" yaml:"args"`
}

// NewRequest builds an ActionRequest. A nil args map is replaced with an empty one.
func NewRequest(name string, args map[string]any) ActionRequest {
	if args == nil {
		args = map[string]any{}
	}
	return ActionRequest{Name: name, Args: args}
}

// ActionResult is returned by an executor on success.
type ActionResult struct {
	OK               bool           `json:"ok"`
	ExtractedContent *string        `json:"extracted_content,omitempty"`
	IncludeInMemory  bool           `json:"include_in_memory"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// Success builds an ok ActionResult carrying the given meta.
func Success(meta map[string]any) *ActionResult {
	if meta == nil {
		meta = map[string]any{}
	}
	return &ActionResult{OK: true, Meta: meta}
}

// StepOutcome is the runner's record of one request after validation and retries.
type StepOutcome struct {
	Index        int            `json:"index"`
	Name         string         `json:"name"`
	OK           bool           `json:"ok"`
	Detail       string         `json:"detail"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Extracted    *string        `json:"extracted,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// AllOK reports whether every outcome succeeded. An empty slice is ok.
func AllOK(outcomes []StepOutcome) bool {
	for _, o := range outcomes {
		if !o.OK {
			return false
		}
	}
	return true
}
