package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/engine"
	"github.com/rendis/browseract/internal/report"
	"github.com/rendis/browseract/internal/scheduler"
	"github.com/rendis/browseract/internal/script"
	"github.com/rendis/browseract/internal/sites"
	"github.com/rendis/browseract/pkg/mcp"
	"github.com/rendis/browseract/pkg/schema"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, err := a.registry()
			if err != nil {
				return setupError(err)
			}
			source := a.configPath
			if source == "" {
				source = settingsPath()
			}
			domains := "(any)"
			if len(a.cfg.AllowedDomains) > 0 {
				domains = strings.Join(a.cfg.AllowedDomains, ", ")
			}

			color.New(color.FgCyan, color.Bold).Fprintln(a.stdout, "[doctor] browseract environment")
			tw := newTable(a.stdout)
			rows := [][2]string{
				{"version", version},
				{"config", source},
				{"driver", a.cfg.Driver},
				{"headless", fmt.Sprint(a.cfg.Headless)},
				{"slowmo_ms", fmt.Sprint(a.cfg.SlowMoMS)},
				{"request_timeout_seconds", fmt.Sprint(a.cfg.RequestTimeoutSeconds)},
				{"allowed_domains", domains},
				{"retries", fmt.Sprint(a.cfg.Retries)},
				{"artifacts_dir", a.cfg.ArtifactsDir},
				{"report_dir", a.cfg.ReportDir},
				{"log_level", a.cfg.LogLevel},
				{"site", a.cfg.Site},
				{"actions", strings.Join(actionNames(reg), ", ")},
			}
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
			}
			return tw.Flush()
		},
	}
}

func actionNames(reg *actions.Registry) []string {
	metas := reg.List()
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.Name
	}
	return names
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script>",
		Short: "Check a script offline without starting a browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, v, err := a.registry()
			if err != nil {
				return setupError(err)
			}
			reqs, err := script.Load(args[0], v)
			if err != nil {
				a.printScriptError("validate", err)
				return &exitError{code: exitSetup}
			}

			results := reg.Check(reqs)
			if err := renderChecks(a.stdout, results); err != nil {
				return err
			}
			if !actions.AllChecksOK(results) {
				bad := 0
				for _, r := range results {
					if !r.OK() {
						bad++
					}
				}
				fmt.Fprintln(a.stdout, color.RedString("[validate] %d of %d specs failed", bad, len(results)))
				return failed()
			}
			fmt.Fprintln(a.stdout, color.GreenString("[validate] all specs passed"))
			return nil
		},
	}
}

// printScriptError reports a script that could not be loaded, listing the
// schema violations when there are any.
func (a *app) printScriptError(prefix string, err error) {
	fmt.Fprintln(a.stderr, color.RedString("[%s] %v", prefix, err))
	var sErr *schema.Error
	if errors.As(err, &sErr) {
		for _, v := range sErr.Violations() {
			fmt.Fprintf(a.stderr, "  - %s\n", v)
		}
	}
}

// runFlags are the browser flags shared by run, apply, schedule and mcp.
type runFlags struct {
	driver       string
	headless     bool
	noHeadless   bool
	slowMo       int
	retries      int
	artifactsDir string
	randomDelay  string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.driver, "driver", "", "browser backend: playwright, rod or static")
	fs.BoolVar(&f.headless, "headless", true, "run the browser without a window")
	fs.BoolVar(&f.noHeadless, "no-headless", false, "show the browser window")
	fs.IntVar(&f.slowMo, "slowmo", 0, "slow every browser operation down by this many milliseconds")
	fs.IntVar(&f.retries, "retries", 0, "additional attempts after a failed step")
	fs.StringVar(&f.artifactsDir, "artifacts-dir", "", "directory for failure screenshots")
	fs.StringVar(&f.randomDelay, "random-delay-ms", "", "random pause after every attempt, as low,high milliseconds")
}

// apply overrides the loaded config with the flags set on cmd and returns
// the pacing range.
func (f *runFlags) apply(cmd *cobra.Command, cfg *Config) (engine.DelayRange, error) {
	fs := cmd.Flags()
	if fs.Changed("driver") {
		cfg.Driver = f.driver
	}
	if fs.Changed("headless") {
		cfg.Headless = f.headless
	}
	if f.noHeadless {
		cfg.Headless = false
	}
	if fs.Changed("slowmo") {
		cfg.SlowMoMS = f.slowMo
	}
	if fs.Changed("retries") {
		cfg.Retries = f.retries
	}
	if fs.Changed("artifacts-dir") {
		cfg.ArtifactsDir = f.artifactsDir
	}
	if err := cfg.validate(); err != nil {
		return engine.DelayRange{}, err
	}
	return engine.ParseDelayRange(f.randomDelay)
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags   runFlags
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a script in one browser session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := flags.apply(cmd, &a.cfg)
			if err != nil {
				return setupError(err)
			}
			reg, v, err := a.registry()
			if err != nil {
				return setupError(err)
			}
			reqs, err := script.Load(args[0], v)
			if err != nil {
				a.printScriptError("run", err)
				return &exitError{code: exitSetup}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner, drv, err := a.startRunner(ctx, reg, delay)
			if err != nil {
				return setupError(err)
			}
			defer a.stopDriver(ctx, drv)

			sess, err := drv.NewSession(ctx)
			if err != nil {
				return setupError(fmt.Errorf("open session: %w", err))
			}
			outcomes := runner.Run(ctx, sess, reqs)
			if err := drv.CloseSession(context.WithoutCancel(ctx), sess); err != nil {
				a.logger.Warn("close session failed", slog.String("error", err.Error()))
			}

			if jsonOut {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcomes); err != nil {
					return err
				}
			} else if err := renderOutcomes(a.stdout, outcomes); err != nil {
				return err
			}
			if !schema.AllOK(outcomes) {
				if !jsonOut {
					fmt.Fprintln(a.stdout, color.RedString("[run] failed"))
				}
				return failed()
			}
			if !jsonOut {
				fmt.Fprintln(a.stdout, color.GreenString("[run] completed successfully"))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the outcomes as JSON")
	return cmd
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		flags  runFlags
		site   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "apply <jobs-file>",
		Short: "Run the site sequence for every job and write the daily report",
		Long:  "Jobs are read from a JSON or YAML list of job items, or from a text file with one URL per line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := flags.apply(cmd, &a.cfg)
			if err != nil {
				return setupError(err)
			}
			if site != "" {
				a.cfg.Site = site
			}
			jobs, err := readJobs(args[0])
			if err != nil {
				return setupError(err)
			}
			adapter, err := sites.Lookup(a.cfg.Site, a.cfg.Demo)
			if err != nil {
				return setupError(err)
			}
			reg, _, err := a.registry()
			if err != nil {
				return setupError(err)
			}
			if outDir == "" {
				outDir = filepath.Join(a.cfg.ReportDir, time.Now().Format(time.DateOnly))
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner, drv, err := a.startRunner(ctx, reg, delay)
			if err != nil {
				return setupError(err)
			}
			defer a.stopDriver(ctx, drv)

			rep, paths, err := a.applyJobs(ctx, runner, adapter, jobs, outDir)
			if err != nil {
				return setupError(err)
			}
			if err := renderReport(a.stdout, rep); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "[apply] report: %s, %s, %s\n", paths.JSON, paths.CSV, paths.XLSX)
			if rep.Failure > 0 {
				fmt.Fprintln(a.stdout, color.RedString("[apply] %d of %d jobs failed", rep.Failure, rep.Total))
				return failed()
			}
			fmt.Fprintln(a.stdout, color.GreenString("[apply] %d jobs applied", rep.Success))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&site, "site", "", "site adapter ("+strings.Join(sites.Names(), ", ")+")")
	cmd.Flags().StringVar(&outDir, "out", "", "report directory; default <report_dir>/<date>")
	return cmd
}

// applyJobs runs the adapter sequence for every job and writes the report.
func (a *app) applyJobs(ctx context.Context, runner *engine.Runner, adapter sites.Adapter, jobs []schema.JobItem, dir string) (schema.DailyReport, report.Paths, error) {
	b := &engine.Batch{
		Runner: runner,
		Site:   adapter.Name(),
		Build:  adapter.Build,
		Fields: adapter.Fields(),
		Logger: a.logger,
	}
	rep := b.Run(ctx, jobs)
	paths, err := report.Write(rep, dir)
	if err != nil {
		return rep, paths, fmt.Errorf("write report: %w", err)
	}
	return rep, paths, nil
}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect written reports",
	}
	query := &cobra.Command{
		Use:     "query <report.json> <jq>",
		Short:   "Evaluate a jq expression against a report",
		Example: "  browseract report query reports/2026-10-19/report.json '.items[] | select(.ok | not) | .job.url'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := report.Query(cmd.Context(), args[0], args[1])
			if err != nil {
				return setupError(err)
			}
			enc := json.NewEncoder(a.stdout)
			for _, v := range out {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.AddCommand(query)
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var (
		flags         runFlags
		interval      time.Duration
		recoverMissed bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <schedule.yaml>",
		Short: "Run apply batches on cron schedules until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := flags.apply(cmd, &a.cfg)
			if err != nil {
				return setupError(err)
			}
			jobs, err := scheduler.LoadFile(args[0])
			if err != nil {
				return setupError(err)
			}
			reg, _, err := a.registry()
			if err != nil {
				return setupError(err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner, drv, err := a.startRunner(ctx, reg, delay)
			if err != nil {
				return setupError(err)
			}
			defer a.stopDriver(ctx, drv)

			sched := scheduler.NewScheduler(a.scheduledRunner(runner), a.logger)
			if interval > 0 {
				sched.SetInterval(interval)
			}
			for _, j := range jobs {
				if err := sched.Add(j); err != nil {
					return setupError(err)
				}
			}
			if recoverMissed {
				if err := sched.RecoverMissed(ctx); err != nil {
					a.logger.Warn("recover missed jobs failed", slog.String("error", err.Error()))
				}
			}
			if err := sched.Start(ctx); err != nil {
				return setupError(err)
			}
			a.logger.Info("scheduler running", slog.Int("jobs", len(jobs)))
			<-ctx.Done()
			return sched.Stop()
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "how often due jobs are checked; default 1m")
	cmd.Flags().BoolVar(&recoverMissed, "recover-missed", false, "run jobs whose next run is already in the past on startup")
	return cmd
}

// scheduledRunner runs one scheduled job as an apply batch writing to
// <report_dir>/<job id>/<date>.
func (a *app) scheduledRunner(runner *engine.Runner) scheduler.Runner {
	return scheduler.RunnerFunc(func(ctx context.Context, job scheduler.Job) error {
		site := job.Site
		if site == "" {
			site = a.cfg.Site
		}
		adapter, err := sites.Lookup(site, a.cfg.Demo)
		if err != nil {
			return err
		}
		items, err := readJobs(job.JobsFile)
		if err != nil {
			return err
		}
		base := job.ReportDir
		if base == "" {
			base = a.cfg.ReportDir
		}
		dir := filepath.Join(base, job.ID, time.Now().Format(time.DateOnly))
		rep, _, err := a.applyJobs(ctx, runner, adapter, items, dir)
		if err != nil {
			return err
		}
		if rep.Failure > 0 {
			return fmt.Errorf("%d of %d jobs failed", rep.Failure, rep.Total)
		}
		return nil
	})
}

func newMCPCmd(a *app) *cobra.Command {
	var (
		flags     runFlags
		noBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the action registry as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			delay, err := flags.apply(cmd, &a.cfg)
			if err != nil {
				return setupError(err)
			}
			reg, v, err := a.registry()
			if err != nil {
				return setupError(err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			deps := mcp.ServerDeps{
				Registry:  reg,
				Validator: v,
				Version:   version,
				Logger:    a.logger,
			}
			if !noBrowser {
				runner, drv, err := a.startRunner(ctx, reg, delay)
				if err != nil {
					return setupError(err)
				}
				defer a.stopDriver(ctx, drv)
				deps.Runner = runner
			}
			return mcp.NewServer(deps).Serve(ctx)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve without a driver; browser.run reports an error")
	return cmd
}
