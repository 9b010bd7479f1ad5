// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

// Checker is implemented by every dependency probe.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Result is the outcome of one named check.
type Result struct {
	Err      error
	Duration time.Duration
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Run executes every check concurrently, each bounded by timeout, and waits
// for all of them. Nil checkers are skipped.
func Run(ctx context.Context, checks map[string]Checker, timeout time.Duration) map[string]Result {
	results := make(map[string]Result, len(checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checks {
		if c == nil {
			continue
		}
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := c.HealthCheck(checkCtx)
			mu.Lock()
			results[name] = Result{Err: err, Duration: time.Since(start)}
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()
	return results
}
