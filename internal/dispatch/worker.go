package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"plangen/internal/domain"
	"plangen/internal/metrics"
)

// TTLPolicy selects the cache TTL for a completed result by content class.
type TTLPolicy struct {
	Plans   time.Duration
	Default time.Duration
}

// For returns the TTL for a plan type.
func (p TTLPolicy) For(t domain.PlanType) time.Duration {
	if domain.KnownPlanType(t) && p.Plans > 0 {
		return p.Plans
	}
	if p.Default > 0 {
		return p.Default
	}
	return 24 * time.Hour
}

// Worker runs a pool of goroutines that claim pending jobs and drive each
// through the executor to a terminal state. Jobs for different users proceed
// concurrently; a single job only ever runs on one goroutine.
type Worker struct {
	Jobs         domain.JobRepository
	Cache        domain.CacheRepository
	Exec         *Executor
	Count        int
	PollInterval time.Duration
	TTL          TTLPolicy
	Logger       zerolog.Logger

	// resultRetryDelay overrides the cache-write retry pacing in tests.
	resultRetryDelay time.Duration
}

// Run blocks until ctx is done, then waits for in-flight jobs to settle.
func (w *Worker) Run(ctx context.Context) error {
	count := w.Count
	if count < 1 {
		count = 1
	}
	w.Logger.Info().Int("workers", count).Msg("worker: started")

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	w.Logger.Info().Msg("worker: stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	poll := w.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Jobs.ClaimNext(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJobAvailable) && !errors.Is(err, context.Canceled) {
				w.Logger.Error().Err(err).Int("worker", workerID).Msg("worker: claim failed")
			}
			if err := sleep(ctx, poll); err != nil {
				return
			}
			continue
		}

		w.process(ctx, workerID, job)
	}
}

func (w *Worker) process(ctx context.Context, workerID int, job *domain.Job) {
	w.Logger.Info().
		Int("worker", workerID).
		Str("job_id", job.ID).
		Str("plan_type", string(job.PlanType)).
		Msg("worker: picked job")

	payload, err := w.Exec.Run(ctx, job)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	// Cache first so the result reference always resolves once the job
	// reads completed.
	if err := w.putResult(ctx, job, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			w.fail(ctx, job, err)
			return
		}
		w.fail(ctx, job, domain.NewCodedError(domain.CodeTransientNetwork, "result store unavailable: %v", err))
		return
	}
	if err := w.Jobs.Complete(ctx, job.ID, job.Fingerprint); err != nil {
		if errors.Is(err, domain.ErrTerminalState) {
			w.Logger.Warn().Str("job_id", job.ID).Msg("worker: job already terminal on complete")
			return
		}
		w.Logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: complete failed")
		return
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(job.PlanType), string(domain.JobStatusCompleted)).Inc()
	w.Logger.Info().Str("job_id", job.ID).Msg("worker: job completed")
}

const (
	resultPutAttempts   = 3
	resultPutRetryDelay = 500 * time.Millisecond
)

// putResult writes the generated payload to the result cache, retrying so a
// brief database blip does not burn a finished generation.
func (w *Worker) putResult(ctx context.Context, job *domain.Job, payload []byte) error {
	ttl := w.TTL.For(job.PlanType)
	delay := w.resultRetryDelay
	if delay <= 0 {
		delay = resultPutRetryDelay
	}
	var err error
	for i := 0; i < resultPutAttempts; i++ {
		if i > 0 {
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}
		if err = w.Cache.Put(ctx, job.Fingerprint, job.PlanType, payload, ttl); err == nil {
			return nil
		}
		w.Logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", i+1).Msg("worker: cache write failed")
	}
	return err
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, runErr error) {
	if errors.Is(runErr, context.Canceled) {
		// Shutdown mid-job: leave it processing for the stale sweeper or
		// a restarted worker generation.
		w.Logger.Warn().Str("job_id", job.ID).Msg("worker: interrupted by shutdown")
		return
	}
	if errors.Is(runErr, domain.ErrCancelled) {
		// The cancel endpoint already moved the job; nothing to write,
		// and never a cache entry for a cancelled job.
		metrics.JobsFinishedTotal.WithLabelValues(string(job.PlanType), string(domain.JobStatusCancelled)).Inc()
		w.Logger.Info().Str("job_id", job.ID).Msg("worker: job cancelled")
		return
	}

	code := domain.CodeOf(runErr)
	if code == "" {
		code = domain.CodeTransientNetwork
	}
	if err := w.Jobs.Fail(ctx, job.ID, code, runErr.Error()); err != nil {
		if errors.Is(err, domain.ErrTerminalState) {
			w.Logger.Warn().Str("job_id", job.ID).Msg("worker: job already terminal on fail")
			return
		}
		w.Logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: fail transition failed")
		return
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(job.PlanType), string(domain.JobStatusFailed)).Inc()
	w.Logger.Warn().
		Str("job_id", job.ID).
		Str("error_code", string(code)).
		Msg("worker: job failed")
}
