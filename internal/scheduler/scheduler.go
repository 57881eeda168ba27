// Package scheduler runs batch applications on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultInterval is how often the loop checks for due jobs.
const DefaultInterval = 60 * time.Second

// Run statuses recorded on a Job.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job is one scheduled batch run: the jobs listed in JobsFile are processed
// with the Site adapter and the report written under ReportDir.
type Job struct {
	ID        string `json:"id" yaml:"id"`
	Cron      string `json:"cron" yaml:"cron"`
	Site      string `json:"site" yaml:"site"`
	JobsFile  string `json:"jobs_file" yaml:"jobs_file"`
	ReportDir string `json:"report_dir,omitempty" yaml:"report_dir"`
	Enabled   bool   `json:"enabled" yaml:"-"`

	NextRunAt     *time.Time `json:"next_run_at,omitempty" yaml:"-"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty" yaml:"-"`
	LastRunStatus string     `json:"last_run_status,omitempty" yaml:"-"`
}

// Runner executes one scheduled job.
type Runner interface {
	RunScheduled(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) error

func (f RunnerFunc) RunScheduled(ctx context.Context, job Job) error { return f(ctx, job) }

// Scheduler keeps a table of jobs and runs those that are due.
type Scheduler struct {
	runner   Runner
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*Job

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: DefaultInterval,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
}

// SetInterval changes the polling interval. It must be called before Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Add validates job and adds it to the table, replacing any job with the same
// ID. A job without NextRunAt is due at its next cron time after now.
func (s *Scheduler) Add(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("scheduled job needs an id")
	}
	if job.JobsFile == "" {
		return fmt.Errorf("scheduled job %q needs a jobs_file", job.ID)
	}
	if job.NextRunAt == nil {
		next, err := s.CalculateNextRun(job.Cron, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("scheduled job %q: %w", job.ID, err)
		}
		job.NextRunAt = &next
	} else if _, err := s.parser.Parse(job.Cron); err != nil {
		return fmt.Errorf("scheduled job %q: parse cron expression %q: %w", job.ID, job.Cron, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	cp := job
	s.jobs[job.ID] = &cp
	return nil
}

// Jobs returns a snapshot of the job table sorted by ID.
func (s *Scheduler) Jobs() []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Get returns a copy of the job with the given ID.
func (s *Scheduler) Get(id string) (Job, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval), slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// due returns the enabled jobs whose next run is not after now.
func (s *Scheduler) due(now time.Time, strictlyBefore bool) []Job {
	var out []Job
	for _, job := range s.Jobs() {
		if !job.Enabled {
			continue
		}
		if strictlyBefore {
			if job.NextRunAt != nil && job.NextRunAt.Before(now) {
				out = append(out, job)
			}
			continue
		}
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			out = append(out, job)
		}
	}
	return out
}

// tick checks all enabled jobs and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, job := range s.due(now, false) {
		if ctx.Err() != nil {
			return
		}
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run scheduled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.ID)
	}
}

// runJob executes a scheduled job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job Job, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("site", job.Site),
	)

	err := s.runner.RunScheduled(ctx, job)
	status := StatusSuccess
	if err != nil {
		status = StatusError
		s.logger.Error("scheduled job execution failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.updateJobStatus(job, now, status)
}

func (s *Scheduler) updateJobStatus(job Job, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(job.Cron, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	j, ok := s.jobs[job.ID]
	if !ok {
		return nil
	}
	j.LastRunAt = &now
	j.NextRunAt = &nextRun
	j.LastRunStatus = status
	return nil
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs once every job whose next run already passed.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	now := time.Now().UTC()
	recovered := 0
	for _, job := range s.due(now, true) {
		if !s.tryAcquire(job.ID) {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to recover missed job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			s.releaseJob(job.ID)
			continue
		}
		s.releaseJob(job.ID)
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}

// LoadFile reads a YAML schedule of the form {jobs: [...]}. Jobs are enabled
// unless they set enabled: false.
func LoadFile(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var raw struct {
		Jobs []struct {
			Job     `yaml:",inline"`
			Enabled *bool `yaml:"enabled"`
		} `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", path, err)
	}
	jobs := make([]Job, 0, len(raw.Jobs))
	for _, r := range raw.Jobs {
		j := r.Job
		j.Enabled = r.Enabled == nil || *r.Enabled
		jobs = append(jobs, j)
	}
	return jobs, nil
}
