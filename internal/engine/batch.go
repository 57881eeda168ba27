package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/internal/logging"
	"github.com/rendis/browseract/internal/report"
	"github.com/rendis/browseract/internal/telemetry"
	"github.com/rendis/browseract/pkg/schema"
)

// SequenceBuilder turns a job into the requests that process it.
type SequenceBuilder func(job schema.JobItem) []schema.ActionRequest

// Batch runs one action sequence per job, each on a fresh session, and
// aggregates the results into a DailyReport.
type Batch struct {
	Runner *Runner
	Site   string
	Build  SequenceBuilder
	Fields report.FieldSelectors
	Logger *slog.Logger
}

// Run processes jobs sequentially. A job whose session cannot be opened is
// reported as failed; the batch itself never fails.
func (b *Batch) Run(ctx context.Context, jobs []schema.JobItem) schema.DailyReport {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}

	results := make([]schema.ApplyResult, 0, len(jobs))
	for _, job := range jobs {
		res := b.runJob(logging.WithJobURL(ctx, job.URL), job, logger)
		result := "ok"
		if !res.OK {
			result = "failed"
		}
		telemetry.JobsTotal.WithLabelValues(b.Site, result).Inc()
		results = append(results, res)
	}

	rep := report.NewDailyReport(b.Site, runID, results)
	logger.InfoContext(ctx, "batch finished",
		slog.String("site", b.Site),
		slog.Int("total", rep.Total),
		slog.Int("success", rep.Success),
		slog.Int("failure", rep.Failure),
	)
	return rep
}

func (b *Batch) runJob(ctx context.Context, job schema.JobItem, logger *slog.Logger) schema.ApplyResult {
	logger = logging.LogWith(ctx, logger)
	if err := ctx.Err(); err != nil {
		return schema.ApplyResult{
			Job:   job,
			Steps: []schema.ApplyStep{},
			Error: schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithCause(err).Error(),
		}
	}

	s, err := b.Runner.drv.NewSession(ctx)
	if err != nil {
		logger.WarnContext(ctx, "open session failed", slog.String("error", err.Error()))
		return schema.ApplyResult{Job: job, Steps: []schema.ApplyStep{}, Error: err.Error()}
	}
	defer func() {
		if err := b.Runner.drv.CloseSession(context.WithoutCancel(ctx), s); err != nil {
			logger.DebugContext(ctx, "close session failed", slog.String("error", err.Error()))
		}
	}()

	outcomes := b.Runner.Run(ctx, s, b.Build(job))
	return report.ApplyFromOutcomes(job, outcomes, b.Fields)
}

// Driver returns the driver the runner drives.
func (r *Runner) Driver() driver.Driver { return r.drv }
