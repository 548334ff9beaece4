package postcommit

import (
	"context"
	"time"

	"order-platform/internal/common/logger"
)

// Hook is a side effect run after the authoritative write has committed.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Runner executes hooks one by one. A failing hook is retried and then
// logged; it never fails the caller.
type Runner struct {
	log      *logger.Logger
	attempts int
	backoff  time.Duration
}

func NewRunner(log *logger.Logger, attempts int, backoff time.Duration) *Runner {
	if attempts <= 0 {
		attempts = 3
	}
	return &Runner{log: log, attempts: attempts, backoff: backoff}
}

// Hooks collects hooks while a use case runs.
type Hooks []Hook

func (h *Hooks) Add(name string, fn func(ctx context.Context) error) {
	*h = append(*h, Hook{Name: name, Fn: fn})
}

// Run returns the number of hooks that gave up.
func (r *Runner) Run(ctx context.Context, hooks Hooks) int {
	failed := 0
	for _, h := range hooks {
		if err := r.runOne(ctx, h); err != nil {
			failed++
			r.log.Error("post_commit_hook_failed", err, map[string]any{"hook": h.Name, "attempts": r.attempts})
		}
	}
	return failed
}

func (r *Runner) runOne(ctx context.Context, h Hook) error {
	var err error
	wait := r.backoff
	for i := 1; i <= r.attempts; i++ {
		if err = h.Fn(ctx); err == nil {
			return nil
		}
		if i == r.attempts {
			break
		}
		r.log.Warn("post_commit_hook_retry", map[string]any{"hook": h.Name, "attempt": i, "error": err.Error()})
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return err
}
