package actions

import (
	"github.com/rendis/browseract/pkg/schema"
)

// Check statuses, as printed by the validate command.
const (
	StatusOK            = "OK"
	StatusNotRegistered = "Not Registered"
	StatusInvalidArgs   = "Invalid Args"
)

// CheckResult is the offline verdict on one request.
type CheckResult struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the request would be executed.
func (c CheckResult) OK() bool { return c.Status == StatusOK }

// Check validates every request without executing anything.
func (r *Registry) Check(reqs []schema.ActionRequest) []CheckResult {
	out := make([]CheckResult, 0, len(reqs))
	for i, req := range reqs {
		res := CheckResult{Index: i + 1, Name: req.Name, Status: StatusOK}
		if _, _, err := r.ValidateRequest(req); err != nil {
			res.Error = err.Error()
			res.Status = StatusInvalidArgs
			if schema.CodeOf(err) == schema.ErrCodeNotRegistered {
				res.Status = StatusNotRegistered
			}
		}
		out = append(out, res)
	}
	return out
}

// AllChecksOK reports whether every result is OK.
func AllChecksOK(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}
