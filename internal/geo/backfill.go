package geo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/swipestack/internal/profile"
)

// JobMetrics is the subset of the background job metrics the backfill job
// reports to.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
	AddJobItems(jobType, outcome string, n int)
}

const jobTypeLocationBackfill = "location_backfill"

// Defaults for BackfillJobConfig.
const (
	DefaultBackfillInterval  = 5 * time.Minute
	DefaultBackfillTimeout   = time.Minute
	DefaultBackfillBatchSize = 200
)

// BackfillJobConfig configures the location backfill job.
type BackfillJobConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	BatchSize  int
	Logger     *slog.Logger
	JobMetrics JobMetrics
}

// BackfillJob periodically resolves profiles that have location text but
// no stored coordinates and writes the result back. Ranking works without
// it; it only saves resolver work on the hot path.
type BackfillJob struct {
	config   BackfillJobConfig
	store    profile.LocationStore
	resolver *Resolver

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBackfillJob creates a backfill job.
func NewBackfillJob(config BackfillJobConfig, store profile.LocationStore, resolver *Resolver) *BackfillJob {
	if config.Interval == 0 {
		config.Interval = DefaultBackfillInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultBackfillTimeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBackfillBatchSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &BackfillJob{config: config, store: store, resolver: resolver}
}

// Start launches the job loop in the background. Calling Start on a running
// job is a no-op.
func (j *BackfillJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	go j.run(ctx, j.stopCh, j.doneCh)
}

// Stop signals the loop to exit and waits for it.
func (j *BackfillJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.running = false
	j.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning reports whether the loop is active.
func (j *BackfillJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *BackfillJob) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("location backfill stopping due to context cancellation")
			return
		case <-stopCh:
			j.config.Logger.Info("location backfill stopping due to stop signal")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// BackfillResult summarizes one backfill pass.
type BackfillResult struct {
	Scanned    int
	Resolved   int
	Unresolved int
	Failed     int
}

// RunOnce processes one batch immediately.
func (j *BackfillJob) RunOnce(parent context.Context) BackfillResult {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	start := time.Now()
	var res BackfillResult

	pending, err := j.store.MissingCoordinates(ctx, j.config.BatchSize)
	if err != nil {
		j.config.Logger.Error("failed to list profiles missing coordinates", "error", err)
		j.finish(res, start, "store_error")
		return res
	}
	res.Scanned = len(pending)
	if len(pending) == 0 {
		return res
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			j.config.Logger.Error("location backfill timeout exceeded",
				"processed", res.Resolved+res.Unresolved+res.Failed,
				"total", res.Scanned,
				"timeout", j.config.Timeout)
			j.finish(res, start, "timeout")
			return res
		}

		c := j.resolver.ResolveCoordinates(ctx, p.LocationText)
		if !c.Known() {
			res.Unresolved++
			continue
		}
		if err := j.store.SetCoordinates(ctx, p.ID, c); err != nil {
			j.config.Logger.Warn("failed to store coordinates", "profile_id", p.ID, "error", err)
			res.Failed++
			continue
		}
		res.Resolved++
	}

	j.finish(res, start, "")
	return res
}

func (j *BackfillJob) finish(res BackfillResult, start time.Time, errorType string) {
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case errorType != "":
		status = "failure"
	case res.Failed > 0 || res.Unresolved > 0:
		status = "partial"
	}

	if m := j.config.JobMetrics; m != nil {
		if errorType != "" {
			m.IncJobErrors(jobTypeLocationBackfill, errorType)
		}
		m.IncJobsTotal(jobTypeLocationBackfill, status)
		m.ObserveJobDuration(jobTypeLocationBackfill, duration)
		m.AddJobItems(jobTypeLocationBackfill, "resolved", res.Resolved)
		m.AddJobItems(jobTypeLocationBackfill, "unresolved", res.Unresolved)
		m.AddJobItems(jobTypeLocationBackfill, "failed", res.Failed)
	}

	j.config.Logger.Info("location backfill completed",
		"duration_seconds", duration,
		"status", status,
		"scanned", res.Scanned,
		"resolved", res.Resolved,
		"unresolved", res.Unresolved,
		"failed", res.Failed)
}
