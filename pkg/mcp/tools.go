package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/script"
	"github.com/rendis/browseract/pkg/schema"
)

// ValidateResult is the browser.validate payload.
type ValidateResult struct {
	OK      bool                  `json:"ok"`
	Results []actions.CheckResult `json:"results"`
}

// RunResult is the browser.run payload.
type RunResult struct {
	OK       bool                 `json:"ok"`
	Outcomes []schema.StepOutcome `json:"outcomes"`
}

// handleActions lists the registry.
func (s *Server) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.registry == nil {
		return mcp.NewToolResultError("no action registry configured"), nil
	}
	return marshalResult(s.registry.List())
}

// handleValidate checks requests offline.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reqs, errResult := s.parseRequests(req)
	if errResult != nil {
		return errResult, nil
	}
	results := s.registry.Check(reqs)
	return marshalResult(ValidateResult{OK: actions.AllChecksOK(results), Results: results})
}

// handleRun executes requests on a session opened for this call.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("no browser driver configured"), nil
	}
	reqs, errResult := s.parseRequests(req)
	if errResult != nil {
		return errResult, nil
	}

	drv := s.runner.Driver()
	sess, err := drv.NewSession(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open session failed: %v", err)), nil
	}
	defer func() {
		if err := drv.CloseSession(context.WithoutCancel(ctx), sess); err != nil {
			s.logger.DebugContext(ctx, "close session failed", slog.String("error", err.Error()))
		}
	}()

	outcomes := s.runner.Run(ctx, sess, reqs)
	return marshalResult(RunResult{OK: schema.AllOK(outcomes), Outcomes: outcomes})
}

// parseRequests validates the "requests" argument as a script document.
func (s *Server) parseRequests(req mcp.CallToolRequest) ([]schema.ActionRequest, *mcp.CallToolResult) {
	if s.registry == nil || s.validator == nil {
		return nil, mcp.NewToolResultError("no action registry configured")
	}
	raw, ok := req.GetArguments()["requests"]
	if !ok || raw == nil {
		return nil, mcp.NewToolResultError("requests is required")
	}
	reqs, err := script.FromDocument(raw, s.validator)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return reqs, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
