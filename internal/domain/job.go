package domain

import "time"

// PlanType is the content class of a generation request. It decides the
// prompt framing and how long a cached result stays fresh.
type PlanType string

const (
	PlanTypeWorkout PlanType = "workout_plan"
	PlanTypeMeal    PlanType = "meal_plan"
)

// KnownPlanType reports whether the given plan type is one the dispatcher
// understands. Unknown types are still dispatched but cached with the
// default TTL.
func KnownPlanType(t PlanType) bool {
	return t == PlanTypeWorkout || t == PlanTypeMeal
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether s participates in the one-active-job-per-user
// invariant.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Job tracks one generation request through its lifecycle. At most one job
// with an active status may exist per user; the jobs table enforces this with
// a partial unique index.
type Job struct {
	ID           string
	UserID       string
	PlanType     PlanType
	Fingerprint  string
	Params       []byte
	Schema       []byte
	Status       JobStatus
	RetryCount   int
	MaxRetries   int
	Temperature  float64
	MaxOutputTok int
	ResultRef    string
	ErrorCode    ErrorCode
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    time.Time
}

// CacheEntry is one row of the result cache, keyed by request fingerprint.
type CacheEntry struct {
	Fingerprint    string
	PlanType       PlanType
	Payload        []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
	HitCount       int64
	LastAccessedAt time.Time
}
