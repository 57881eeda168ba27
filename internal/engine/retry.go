package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/browseract/pkg/schema"
)

// DefaultBackoffStep is the linear backoff unit between attempts.
const DefaultBackoffStep = 500 * time.Millisecond

// IsRetryableError classifies whether a failed attempt should be retried.
// Execution failures are retryable, including per-action timeouts.
// Non-retryable: cancellation and typed errors with non-retryable codes
// anywhere in the chain (a policy violation wrapped in an ActionError, for example).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context cancelled is NOT retryable: the run is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sErr *schema.Error
	if errors.As(err, &sErr) {
		return sErr.IsRetryable()
	}
	return true
}

// ComputeBackoff returns the delay before retrying after the given 1-based
// failed attempt: step * attempt.
func ComputeBackoff(step time.Duration, attempt int) time.Duration {
	if step <= 0 || attempt <= 0 {
		return 0
	}
	return step * time.Duration(attempt)
}

// WaitForBackoff sleeps for the computed backoff duration or returns early if the context is cancelled.
// Returns an error if the context was cancelled during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DelayRange is an inclusive pacing range in milliseconds.
type DelayRange struct {
	LowMS  int `json:"low_ms" yaml:"low_ms"`
	HighMS int `json:"high_ms" yaml:"high_ms"`
}

// Enabled reports whether the range produces any pacing. A range is disabled
// when both bounds are zero, either is negative, or high < low.
func (r DelayRange) Enabled() bool {
	if r.LowMS == 0 && r.HighMS == 0 {
		return false
	}
	return r.LowMS >= 0 && r.HighMS >= 0 && r.HighMS >= r.LowMS
}

func (r DelayRange) String() string {
	return fmt.Sprintf("%d,%d", r.LowMS, r.HighMS)
}

// ParseDelayRange parses "low,high" in milliseconds. The empty string yields
// a disabled range.
func ParseDelayRange(s string) (DelayRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DelayRange{}, nil
	}
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return DelayRange{}, fmt.Errorf("delay range %q: want low,high", s)
	}
	low, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return DelayRange{}, fmt.Errorf("delay range %q: low: %w", s, err)
	}
	high, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return DelayRange{}, fmt.Errorf("delay range %q: high: %w", s, err)
	}
	return DelayRange{LowMS: low, HighMS: high}, nil
}

// pacer sleeps a uniformly random duration within a DelayRange.
type pacer struct {
	rng   DelayRange
	intN  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

func newPacer(r DelayRange) *pacer {
	return &pacer{rng: r, intN: rand.IntN, sleep: WaitForBackoff}
}

// next returns the next pacing delay, or 0 when pacing is disabled.
func (p *pacer) next() time.Duration {
	if !p.rng.Enabled() {
		return 0
	}
	ms := p.rng.LowMS + p.intN(p.rng.HighMS-p.rng.LowMS+1)
	return time.Duration(ms) * time.Millisecond
}

// pace sleeps for the next delay. It returns ctx.Err() if interrupted.
func (p *pacer) pace(ctx context.Context) error {
	d := p.next()
	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}
