package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/internal/logging"
	"github.com/rendis/browseract/internal/telemetry"
	"github.com/rendis/browseract/pkg/schema"
)

// detailLimit is how many characters of extracted content a detail keeps.
const detailLimit = 120

// Outcome labels for the steps_total metric.
const (
	resultOK        = "ok"
	resultFailed    = "failed"
	resultInvalid   = "invalid"
	resultCancelled = "cancelled"
)

// Config configures a Runner.
type Config struct {
	// Retries is the number of additional attempts after a failed one.
	Retries int
	// ArtifactsDir receives failure screenshots. Empty disables capture.
	ArtifactsDir string
	// Delay paces every attempt. The zero value disables pacing.
	Delay DelayRange
	// BackoffStep is the linear backoff unit. Zero means DefaultBackoffStep.
	BackoffStep time.Duration
	Logger      *slog.Logger
}

// Runner drives a list of action requests against one session, in order,
// producing one StepOutcome per request.
type Runner struct {
	reg    *actions.Registry
	drv    driver.Driver
	cfg    Config
	logger *slog.Logger
	pacer  *pacer
	// backoff sleeps between attempts; replaced in tests.
	backoff func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. The artifacts directory is created eagerly.
func NewRunner(reg *actions.Registry, drv driver.Driver, cfg Config) (*Runner, error) {
	if reg == nil || drv == nil {
		return nil, schema.NewError(schema.ErrCodeDriver, "runner needs a registry and a driver")
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = DefaultBackoffStep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ArtifactsDir != "" {
		if err := os.MkdirAll(cfg.ArtifactsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifacts dir: %w", err)
		}
	}
	return &Runner{
		reg:     reg,
		drv:     drv,
		cfg:     cfg,
		logger:  cfg.Logger,
		pacer:   newPacer(cfg.Delay),
		backoff: WaitForBackoff,
	}, nil
}

// Attempt is the tagged result of invoking an executor once: exactly one of
// Result and Failure is set.
type Attempt struct {
	Result  *schema.ActionResult
	Failure error
}

// OK reports whether the attempt produced a result.
func (a Attempt) OK() bool { return a.Failure == nil }

// Run executes reqs in order against s. It never fails: the returned slice
// always has one outcome per request, in input order. When ctx is cancelled
// the remaining requests are reported as cancelled without running.
func (r *Runner) Run(ctx context.Context, s driver.Session, reqs []schema.ActionRequest) []schema.StepOutcome {
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	ctx, span := telemetry.StartSpan(ctx, "browseract.run",
		telemetry.AttrRunID.String(logging.RunID(ctx)),
		telemetry.AttrJobURL.String(logging.JobURL(ctx)),
	)
	defer span.End()

	outcomes := make([]schema.StepOutcome, 0, len(reqs))
	for i, req := range reqs {
		index := i + 1
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, r.cancelled(index, req.Name, err))
			continue
		}
		outcomes = append(outcomes, r.runStep(ctx, s, index, req))
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "run finished", slog.Int("steps", len(outcomes)), slog.Int("failed", failed))
	return outcomes
}

func (r *Runner) runStep(ctx context.Context, s driver.Session, index int, req schema.ActionRequest) (out schema.StepOutcome) {
	start := time.Now()
	ctx = logging.WithStep(ctx, index, req.Name)
	ctx, span := telemetry.StartSpan(ctx, "browseract.step",
		telemetry.AttrStepIndex.Int(index),
		telemetry.AttrAction.String(req.Name),
	)
	defer func() {
		span.SetAttributes(telemetry.AttrOK.Bool(out.OK))
		var err error
		if !out.OK {
			err = errors.New(out.Detail)
		}
		telemetry.EndSpan(span, err)
		telemetry.StepDuration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())
	}()

	_, params, err := r.reg.ValidateRequest(req)
	var exec actions.Executor
	if err == nil {
		exec, err = r.reg.Resolve(req.Name)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "invalid step", slog.String("error", err.Error()))
		out = schema.StepOutcome{
			Index:  index,
			Name:   req.Name,
			Detail: "invalid spec: " + err.Error(),
		}
		out.ArtifactPath = r.captureArtifact(ctx, s, index, req.Name)
		r.pace(ctx)
		telemetry.StepsTotal.WithLabelValues(req.Name, resultInvalid).Inc()
		return out
	}

	attempt := 0
	for {
		a := r.invoke(ctx, exec, s, req.Name, params)
		r.pace(ctx)

		if a.OK() {
			out = schema.StepOutcome{
				Index:     index,
				Name:      req.Name,
				OK:        a.Result.OK,
				Detail:    describe(a.Result),
				Extracted: a.Result.ExtractedContent,
				Meta:      a.Result.Meta,
			}
			result := resultOK
			if !out.OK {
				result = resultFailed
			}
			telemetry.StepsTotal.WithLabelValues(req.Name, result).Inc()
			r.logger.DebugContext(ctx, "step succeeded", slog.Int("attempts", attempt+1), slog.String("detail", out.Detail))
			return out
		}

		attempt++
		if cerr := ctx.Err(); cerr != nil {
			return r.cancelled(index, req.Name, cerr)
		}
		if attempt > r.cfg.Retries || !IsRetryableError(a.Failure) {
			r.logger.WarnContext(ctx, "step failed", slog.Int("attempts", attempt), slog.String("error", a.Failure.Error()))
			out = schema.StepOutcome{
				Index:  index,
				Name:   req.Name,
				Detail: a.Failure.Error(),
			}
			out.ArtifactPath = r.captureArtifact(ctx, s, index, req.Name)
			telemetry.StepsTotal.WithLabelValues(req.Name, resultFailed).Inc()
			return out
		}

		delay := ComputeBackoff(r.cfg.BackoffStep, attempt)
		r.logger.InfoContext(ctx, "retrying step",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", a.Failure.Error()),
		)
		telemetry.StepRetries.Inc()
		if err := r.backoff(ctx, delay); err != nil {
			return r.cancelled(index, req.Name, err)
		}
	}
}

// invoke runs the executor once. Panics and errors other than *ActionError are
// converted into an *ActionError failure.
func (r *Runner) invoke(ctx context.Context, exec actions.Executor, s driver.Session, name string, params any) (a Attempt) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "executor panicked", slog.Any("panic", p))
			a = Attempt{Failure: schema.NewActionError(name, fmt.Sprintf("executor panicked: %v", p), nil)}
		}
	}()

	res, err := exec(ctx, r.drv, s, params)
	if err != nil {
		var aErr *schema.ActionError
		if !errors.As(err, &aErr) {
			err = schema.NewActionError(name, "action failed", err)
		}
		return Attempt{Failure: err}
	}
	if res == nil {
		return Attempt{Failure: schema.NewActionError(name, "executor returned no result", nil)}
	}
	return Attempt{Result: res}
}

func (r *Runner) pace(ctx context.Context) {
	if err := r.pacer.pace(ctx); err != nil {
		r.logger.DebugContext(ctx, "pacing interrupted", slog.String("error", err.Error()))
	}
}

// ArtifactPath returns where the failure screenshot of a step is written.
// The action name is reduced to [A-Za-z0-9_.-] so the file always lands
// directly inside dir.
func ArtifactPath(dir string, index int, name string) string {
	return filepath.Join(dir, fmt.Sprintf("fail-%02d-%s.png", index, artifactName(name)))
}

func artifactName(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if strings.Trim(safe, ".") == "" {
		return "step"
	}
	return safe
}

// captureArtifact takes a best-effort full page screenshot. It returns the
// path on success and "" otherwise.
func (r *Runner) captureArtifact(ctx context.Context, s driver.Session, index int, name string) string {
	if r.cfg.ArtifactsDir == "" || s == nil {
		return ""
	}
	path := ArtifactPath(r.cfg.ArtifactsDir, index, name)
	if err := r.drv.Screenshot(ctx, s, path, true); err != nil {
		r.logger.DebugContext(ctx, "artifact capture failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		telemetry.ArtifactsTotal.WithLabelValues("failed").Inc()
		return ""
	}
	telemetry.ArtifactsTotal.WithLabelValues("captured").Inc()
	return path
}

func (r *Runner) cancelled(index int, name string, cause error) schema.StepOutcome {
	telemetry.StepsTotal.WithLabelValues(name, resultCancelled).Inc()
	err := schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithAction(name).WithCause(cause)
	return schema.StepOutcome{
		Index:  index,
		Name:   name,
		Detail: fmt.Sprintf("%s: %v", err.Error(), cause),
	}
}

// describe renders the human readable detail of a successful attempt.
func describe(res *schema.ActionResult) string {
	if res.ExtractedContent != nil && *res.ExtractedContent != "" {
		return truncate(*res.ExtractedContent, detailLimit)
	}
	if u, ok := res.Meta["url"]; ok {
		return fmt.Sprint(u)
	}
	if sel, ok := res.Meta["selector"]; ok {
		return fmt.Sprintf(`selector="%v"`, sel)
	}
	return "-"
}

// truncate keeps the first n characters of s and appends an ellipsis when
// anything was cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
