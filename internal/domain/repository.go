package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	// CreateOrReuse inserts a pending job, or returns the user's existing
	// active job when its fingerprint matches. An active job with a
	// different fingerprint yields ErrJobConflict.
	CreateOrReuse(ctx context.Context, job *Job) (*Job, bool, error)
	// CreateCompleted records a job that was served from the result cache
	// without an upstream call.
	CreateCompleted(ctx context.Context, job *Job) error
	// Claim transitions a specific pending job to processing. Returns
	// ErrAlreadyClaimed when another worker got there first.
	Claim(ctx context.Context, jobID string) (*Job, error)
	// ClaimNext atomically claims the oldest pending job, or
	// ErrNoJobAvailable.
	ClaimNext(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID, resultRef string) error
	Fail(ctx context.Context, jobID string, code ErrorCode, message string) error
	Cancel(ctx context.Context, jobID string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// Status is a cheap lookup used as the cancellation checkpoint between
	// attempts.
	Status(ctx context.Context, jobID string) (JobStatus, error)
	// IncrementRetry bumps retry_count and returns the new value.
	IncrementRetry(ctx context.Context, jobID string) (int, error)
	// SweepStale reclaims jobs stuck in processing past timeout to failed
	// with CodeJobTimeout.
	SweepStale(ctx context.Context, timeout time.Duration) (int64, error)
	// SweepExpired deletes jobs past expires_at regardless of status.
	SweepExpired(ctx context.Context) (int64, error)
}

// CacheRepository defines persistence for the fingerprint-keyed result cache.
type CacheRepository interface {
	// Get returns the live entry for fingerprint, or (nil, nil) on a miss.
	// A miss is not an error.
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)
	Put(ctx context.Context, fingerprint string, planType PlanType, payload []byte, ttl time.Duration) error
	// Touch increments hit_count and refreshes last_accessed_at. Called on
	// every serve, including cache hits.
	Touch(ctx context.Context, fingerprint string) error
	SweepExpired(ctx context.Context) (int64, error)
}
