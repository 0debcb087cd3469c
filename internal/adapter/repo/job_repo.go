package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"plangen/internal/domain"
	"plangen/internal/infra"
	"plangen/internal/sqlinline"
)

// ActiveJobConstraint names the partial unique index that enforces at most
// one pending/processing job per user at the storage layer.
const ActiveJobConstraint = "generation_jobs_one_active_per_user"

// JobStorePG implements domain.JobRepository on Postgres.
type JobStorePG struct {
	sql    infra.SQLExecutor
	jobTTL time.Duration
}

func NewJobStore(sql infra.SQLExecutor, jobTTL time.Duration) *JobStorePG {
	if jobTTL <= 0 {
		jobTTL = 7 * 24 * time.Hour
	}
	return &JobStorePG{sql: sql, jobTTL: jobTTL}
}

// CreateOrReuse inserts a pending job. When the partial unique index rejects
// the insert, the user's active job is loaded: a matching fingerprint means
// idempotent resubmission and the existing job is returned; a different
// fingerprint is an explicit conflict, never a silent overwrite.
func (r *JobStorePG) CreateOrReuse(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusPending

	err := r.insert(ctx, job, nil)
	if err == nil {
		created, getErr := r.GetByID(ctx, job.ID)
		return created, false, getErr
	}
	if !infra.IsUniqueViolation(err, ActiveJobConstraint) {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	active, lookupErr := r.activeByUser(ctx, job.UserID)
	if lookupErr != nil {
		if infra.IsNoRows(lookupErr) {
			// The competing job finished between insert and lookup;
			// surface the conflict and let the caller resubmit.
			return nil, false, domain.ErrJobConflict
		}
		return nil, false, lookupErr
	}
	if active.Fingerprint == job.Fingerprint {
		return active, true, nil
	}
	return active, false, domain.ErrJobConflict
}

// CreateCompleted records a cache-served job: terminal on arrival, exempt
// from the single-active-job constraint.
func (r *JobStorePG) CreateCompleted(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusCompleted
	now := time.Now()
	if err := r.insert(ctx, job, &now); err != nil {
		return fmt.Errorf("insert completed job: %w", err)
	}
	return nil
}

func (r *JobStorePG) insert(ctx context.Context, job *domain.Job, completedAt *time.Time) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.PlanType,
		job.Fingerprint,
		job.Params,
		job.Schema,
		job.Status,
		job.MaxRetries,
		job.Temperature,
		job.MaxOutputTok,
		job.ResultRef,
		completedAt,
		r.jobTTL.Seconds(),
	)
	return err
}

func (r *JobStorePG) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, err
	}
	return job, nil
}

func (r *JobStorePG) ClaimNext(ctx context.Context) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimNextJob))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

func (r *JobStorePG) Complete(ctx context.Context, jobID, resultRef string) error {
	return r.terminal(ctx, sqlinline.QCompleteJob, jobID, resultRef)
}

func (r *JobStorePG) Fail(ctx context.Context, jobID string, code domain.ErrorCode, message string) error {
	return r.terminal(ctx, sqlinline.QFailJob, jobID, string(code), message)
}

func (r *JobStorePG) Cancel(ctx context.Context, jobID string) error {
	return r.terminal(ctx, sqlinline.QCancelJob, jobID)
}

// terminal runs a guarded transition; zero affected rows means the job was
// already terminal (or missing), reported as ErrTerminalState so callers can
// warn instead of crash.
func (r *JobStorePG) terminal(ctx context.Context, query, jobID string, args ...any) error {
	tag, err := r.sql.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTerminalState
	}
	return nil
}

func (r *JobStorePG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobStorePG) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var status domain.JobStatus
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (r *JobStorePG) IncrementRetry(ctx context.Context, jobID string) (int, error) {
	var count int
	if err := r.sql.QueryRow(ctx, sqlinline.QIncrementJobRetry, jobID).Scan(&count); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func (r *JobStorePG) SweepStale(ctx context.Context, timeout time.Duration) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSweepStaleJobs, timeout.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobStorePG) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSweepExpiredJobs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobStorePG) activeByUser(ctx context.Context, userID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectActiveJobByUser, userID))
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.PlanType,
		&job.Fingerprint,
		&job.Params,
		&job.Schema,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&job.Temperature,
		&job.MaxOutputTok,
		&job.ResultRef,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobStorePG)(nil)
