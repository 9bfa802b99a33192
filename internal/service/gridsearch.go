package service

import (
	"context"
	"log/slog"
	"sync"

	"roomauction/internal/catalogue"
	"roomauction/internal/errs"
	"roomauction/internal/gridsearch"
	"roomauction/internal/ids"
	"roomauction/internal/simulator"
	"roomauction/pkg/types"
)

// JobState is a grid-search job's lifecycle stage.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobSnapshot is a point-in-time read of a grid-search job, returned by
// status(job_id).
type JobSnapshot struct {
	ID        string
	State     JobState
	Completed int
	Total     int
	Result    *gridsearch.Result
	Err       error
}

// job is a single grid-search run's typed registry entry (spec §9's "a
// typed job registry mapping job_id to {status, progress, result|error}").
// The worker is the channel's sole producer; Status reads the
// mutex-guarded latest snapshot a forwarder goroutine keeps current, so
// polling never blocks on the worker.
type job struct {
	mu       sync.Mutex
	snapshot JobSnapshot
	updates  chan JobSnapshot
}

func (j *job) forward() {
	for snap := range j.updates {
		j.mu.Lock()
		j.snapshot = snap
		j.mu.Unlock()
	}
}

func (j *job) publish(snap JobSnapshot) {
	j.updates <- snap
}

func (j *job) read() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot
}

// jobRegistry is the process-wide map of grid-search job_id to job. Each
// job's workers are an independent goroutine with no shared mutable state
// beyond their own job entry.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: map[string]*job{}}
}

func (r *jobRegistry) create(id string) *job {
	j := &job{
		snapshot: JobSnapshot{ID: id, State: JobRunning},
		updates:  make(chan JobSnapshot, 8),
	}
	go j.forward()
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return j
}

func (r *jobRegistry) get(id string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// GridSearchService implements spec §6's Grid search operation group.
type GridSearchService struct {
	catalogue *catalogue.Catalogue
	logger    *slog.Logger
	jobs      *jobRegistry
}

// RunSingle runs one simulation synchronously and returns its metrics and
// per-day detail, per spec §6's `run_single(config) → (metrics,
// daily_detail)`.
func (s *GridSearchService) RunSingle(ctx context.Context, cfg simulator.Config) (*simulator.Result, error) {
	return simulator.Run(cfg)
}

// StartGridSearch launches an asynchronous sweep and returns its job_id
// immediately; the caller polls Status for progress and the final result.
func (s *GridSearchService) StartGridSearch(ctx context.Context, cfg gridsearch.Config) (jobID string, err error) {
	jobID = ids.New()
	j := s.jobs.create(jobID)

	go func() {
		result, runErr := gridsearch.Run(ctx, cfg, func(completed, total int) {
			j.publish(JobSnapshot{ID: jobID, State: JobRunning, Completed: completed, Total: total})
		})
		if runErr != nil {
			j.publish(JobSnapshot{ID: jobID, State: JobFailed, Err: runErr})
			close(j.updates)
			return
		}
		total := len(cfg.TokenAmounts) * len(cfg.TokenFrequencies)
		j.publish(JobSnapshot{ID: jobID, State: JobCompleted, Completed: total, Total: total, Result: result})
		close(j.updates)
	}()

	s.logger.Info("grid search started", "job_id", jobID)
	return jobID, nil
}

// Status returns job_id's current snapshot.
func (s *GridSearchService) Status(ctx context.Context, jobID string) (*JobSnapshot, error) {
	j, ok := s.jobs.get(jobID)
	if !ok {
		return nil, errs.New(errs.NotFound, "grid search job %s not found", jobID)
	}
	snap := j.read()
	return &snap, nil
}

// ApplyBest writes job_id's best combo's token_amount/token_frequency into
// AdminConfig under the single writer lock, bumping pricing_model_version.
func (s *GridSearchService) ApplyBest(ctx context.Context, jobID string) (*types.AdminConfig, error) {
	j, ok := s.jobs.get(jobID)
	if !ok {
		return nil, errs.New(errs.NotFound, "grid search job %s not found", jobID)
	}
	snap := j.read()
	if snap.State != JobCompleted {
		return nil, errs.New(errs.StateInvalid, "grid search job %s is %s, not completed", jobID, snap.State)
	}
	if snap.Result == nil || snap.Result.Best == nil {
		return nil, errs.New(errs.StateInvalid, "grid search job %s produced no ranked combos", jobID)
	}
	best := snap.Result.Best
	return s.catalogue.UpdateConfig(ctx, func(cfg *types.AdminConfig) {
		cfg.TokenAllocationAmount = best.TokenAmount
		cfg.TokenAllocationFreqHours = float64(best.TokenFrequency) * 24
	})
}
