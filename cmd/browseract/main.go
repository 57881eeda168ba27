// Command browseract runs scripted browser actions, batch applications over
// job postings and an MCP server exposing the action registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/internal/driver/playwright"
	"github.com/rendis/browseract/internal/driver/rod"
	"github.com/rendis/browseract/internal/driver/static"
	"github.com/rendis/browseract/internal/engine"
	"github.com/rendis/browseract/internal/logging"
	"github.com/rendis/browseract/internal/telemetry"
	"github.com/rendis/browseract/internal/validation"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitSetup  = 2
)

// exitError carries an exit code out of a command. A nil err means the
// command already reported the problem.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func failed() error { return &exitError{code: exitFailed} }

func setupError(err error) error { return &exitError{code: exitSetup, err: err} }

func main() {
	_ = godotenv.Load()
	os.Exit(execute(newApp(os.Stdout, os.Stderr), os.Args[1:]))
}

// app holds the state shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	// newDriver builds the browser backend for cfg.
	newDriver func(cfg Config, logger *slog.Logger) (driver.Driver, error)

	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
	traceFile   string

	cfg      Config
	logger   *slog.Logger
	tracer   *telemetry.TracerProvider
	traceOut *os.File
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:    stdout,
		stderr:    stderr,
		getenv:    os.Getenv,
		newDriver: newDriver,
		cfg:       defaultConfig(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func execute(a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.Execute()
	a.close()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(a.stderr, color.RedString("error: %v", ee.err))
		}
		return ee.code
	}
	fmt.Fprintln(a.stderr, color.RedString("error: %v", err))
	return exitSetup
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "browseract",
		Short:         "Run validated browser action scripts with retries and failure artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "settings file (.json or .yaml); default ~/.browseract/settings.json")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
	pf.StringVar(&a.traceFile, "trace-file", "", "write OpenTelemetry spans as JSON to this file")

	root.AddCommand(
		newVersionCmd(a),
		newDoctorCmd(a),
		newValidateCmd(a),
		newRunCmd(a),
		newApplyCmd(a),
		newReportCmd(a),
		newScheduleCmd(a),
		newMCPCmd(a),
	)
	return root
}

// setup loads the configuration and starts logging and tracing.
func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath, a.getenv)
	if err != nil {
		return setupError(err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return setupError(err)
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	slog.SetDefault(a.logger)

	if a.traceFile != "" {
		f, err := os.Create(a.traceFile)
		if err != nil {
			return setupError(fmt.Errorf("create trace file: %w", err))
		}
		tp, err := telemetry.NewTracerProvider("browseract", version, f)
		if err != nil {
			_ = f.Close()
			return setupError(err)
		}
		a.traceOut = f
		a.tracer = tp
	}
	return nil
}

// close flushes telemetry. Failures are logged, never fatal.
func (a *app) close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("trace shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
		a.tracer = nil
	}
	if a.traceOut != nil {
		_ = a.traceOut.Close()
		a.traceOut = nil
	}
	if a.metricsFile != "" {
		if err := telemetry.WriteTextfile(a.metricsFile); err != nil {
			a.logger.Warn("write metrics failed", slog.String("error", err.Error()))
		}
	}
}

// registry builds the action registry with the builtin actions.
func (a *app) registry() (*actions.Registry, *validation.JSONSchemaValidator, error) {
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, nil, err
	}
	reg := actions.NewRegistry(v)
	actions.RegisterBuiltins(reg, actions.BuiltinConfig{AllowedDomains: a.cfg.AllowedDomains})
	return reg, v, nil
}

// startRunner starts the configured driver and returns a runner over it.
// The caller stops the driver.
func (a *app) startRunner(ctx context.Context, reg *actions.Registry, delay engine.DelayRange) (*engine.Runner, driver.Driver, error) {
	drv, err := a.newDriver(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := drv.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start %s driver: %w", a.cfg.Driver, err)
	}
	runner, err := engine.NewRunner(reg, drv, engine.Config{
		Retries:      a.cfg.Retries,
		ArtifactsDir: a.cfg.ArtifactsDir,
		Delay:        delay,
		Logger:       a.logger,
	})
	if err != nil {
		_ = drv.Stop(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	a.logger.Debug("driver started", slog.String("driver", a.cfg.Driver), slog.Bool("headless", a.cfg.Headless))
	return runner, drv, nil
}

func (a *app) stopDriver(ctx context.Context, drv driver.Driver) {
	if err := drv.Stop(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("driver stop failed", slog.String("error", err.Error()))
	}
}

// newDriver maps the configured backend name to a driver.
func newDriver(cfg Config, logger *slog.Logger) (driver.Driver, error) {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	slowMo := time.Duration(cfg.SlowMoMS) * time.Millisecond
	switch cfg.Driver {
	case driverPlaywright, "":
		return playwright.New(playwright.Options{
			Headless: cfg.Headless,
			SlowMo:   slowMo,
			Install:  cfg.InstallBrowsers,
			Timeout:  timeout,
			Logger:   logger,
		}), nil
	case driverRod:
		return rod.New(rod.Options{
			Headless: cfg.Headless,
			SlowMo:   slowMo,
			Timeout:  timeout,
			Logger:   logger,
		}), nil
	case driverStatic:
		return static.New(static.Options{Timeout: timeout, Logger: logger}), nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(a.stdout)
		},
	}
}
