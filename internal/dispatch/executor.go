package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"plangen/internal/domain"
	"plangen/internal/infra/credentials"
	"plangen/internal/metrics"
	"plangen/internal/providers/genai"
	"plangen/internal/validate"
)

// Upstream is the generation endpoint contract, satisfied by genai.Client.
type Upstream interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResult, error)
}

// CredentialSource is the slice of the credential pool the executor needs.
type CredentialSource interface {
	Select() (credentials.Lease, error)
	ReportSuccess(ctx context.Context, id string)
	ReportQuotaExceeded(ctx context.Context, id string, cooldown time.Duration)
	ReportFatal(ctx context.Context, id, reason string)
}

// JobControl is the slice of the job store the executor needs between
// attempts: the cancellation checkpoint and retry accounting.
type JobControl interface {
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
	IncrementRetry(ctx context.Context, jobID string) (int, error)
}

// Executor drives the retry loop for a single job. Attempts are strictly
// sequential; concurrency happens across jobs, in the worker pool.
type Executor struct {
	Creds          CredentialSource
	Upstream       Upstream
	Checker        *validate.Checker
	Allowlist      *validate.Allowlist
	Jobs           JobControl
	Backoff        Backoff
	AttemptTimeout time.Duration
	Cooldown       time.Duration
	Logger         zerolog.Logger
}

// Run executes the job to a conclusion and returns the validated payload.
// All transient failures are absorbed here; the returned error is either
// ctx's error or a *domain.CodedError carrying the last recorded code.
func (e *Executor) Run(ctx context.Context, job *domain.Job) ([]byte, error) {
	attempt := job.RetryCount
	strictness := 0
	budget := job.MaxOutputTok
	if budget <= 0 {
		budget = domain.DefaultMaxOutputTokens
	}

	lastErr := domain.NewCodedError(domain.CodeTransientNetwork, "no attempts made")

	for attempt <= job.MaxRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cancelled, err := e.cancelled(ctx, job.ID); err == nil && cancelled {
			return nil, domain.ErrCancelled
		}

		lease, err := e.Creds.Select()
		if err != nil {
			if errors.Is(err, credentials.ErrNoneAvailable) {
				// No retry path: deferring to another worker later is
				// what resubmission is for.
				metrics.AttemptsTotal.WithLabelValues(string(domain.CodeNoCredentials)).Inc()
				return nil, domain.NewCodedError(domain.CodeNoCredentials, "all credentials are blocked or exhausted")
			}
			return nil, err
		}

		payload, attemptErr := e.attempt(ctx, job, lease, strictness, budget)
		if attemptErr == nil {
			e.Creds.ReportSuccess(ctx, lease.ID)
			return payload, nil
		}
		if errors.Is(attemptErr, context.Canceled) {
			// A live parent context means the cancellation came from inside
			// the attempt, not from shutdown; surface the attempt error so
			// the caller never sees a nil payload with a nil error.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, attemptErr
		}

		cls := Classify(attemptErr)
		metrics.AttemptsTotal.WithLabelValues(string(cls.Code)).Inc()
		lastErr = domain.NewCodedError(cls.Code, "%s", attemptErr.Error())

		switch cls.Credential {
		case CredQuota:
			e.Creds.ReportQuotaExceeded(ctx, lease.ID, e.Cooldown)
			metrics.CredentialBlocksTotal.WithLabelValues("quota").Inc()
		case CredFatal:
			e.Creds.ReportFatal(ctx, lease.ID, attemptErr.Error())
			metrics.CredentialBlocksTotal.WithLabelValues("fatal").Inc()
		}

		if !cls.Retryable {
			return nil, lastErr
		}

		attempt++
		if n, retryErr := e.Jobs.IncrementRetry(ctx, job.ID); retryErr != nil {
			e.Logger.Warn().Err(retryErr).Str("job_id", job.ID).Msg("dispatch: persist retry count failed")
		} else if n != attempt {
			attempt = n
		}
		if attempt > job.MaxRetries {
			break
		}

		if cls.Stricter {
			strictness++
		}
		if cls.Code == domain.CodeTruncatedOutput {
			budget = raiseBudget(budget)
		}

		delay := e.Backoff.Delay(attempt)
		e.Logger.Info().
			Str("job_id", job.ID).
			Str("credential", credentialPrefix(lease.ID)).
			Int("attempt", attempt).
			Str("error_code", string(cls.Code)).
			Dur("backoff", delay).
			Msg("dispatch: attempt failed, backing off")
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs one upstream call plus validation under the per-attempt
// timeout.
func (e *Executor) attempt(ctx context.Context, job *domain.Job, lease credentials.Lease, strictness, budget int) ([]byte, error) {
	attemptCtx := ctx
	if e.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.Upstream.Generate(attemptCtx, genai.GenerateRequest{
		APIKey:          lease.APIKey,
		Prompt:          buildPrompt(job.PlanType, job.Params, strictness),
		Schema:          job.Schema,
		Temperature:     strictTemperature(job.Temperature, strictness),
		MaxOutputTokens: budget,
	})
	latency := time.Since(start)
	metrics.AttemptDurationSeconds.Observe(latency.Seconds())

	logEvent := e.Logger.Info()
	if err != nil {
		logEvent = e.Logger.Warn().Err(err)
	}
	logEvent = logEvent.
		Str("job_id", job.ID).
		Str("credential", credentialPrefix(lease.ID)).
		Int("retry_count", job.RetryCount).
		Int("strictness", strictness).
		Dur("latency", latency)
	if result != nil {
		logEvent = logEvent.
			Int("input_tokens", result.Usage.InputTokens).
			Int("output_tokens", result.Usage.OutputTokens)
	}
	logEvent.Msg("dispatch: upstream attempt")

	if err != nil {
		return nil, err
	}

	checked, err := e.Checker.Check(result.RawOutput, job.Schema, result.Usage.OutputTokens, budget)
	if err != nil {
		return nil, err
	}
	payload, err := e.Allowlist.Apply(checked.Payload)
	if err != nil {
		return nil, err
	}
	if checked.Repaired {
		e.Logger.Debug().Str("job_id", job.ID).Msg("dispatch: payload recovered from noisy output")
	}
	metrics.AttemptsTotal.WithLabelValues("ok").Inc()
	return payload, nil
}

func (e *Executor) cancelled(ctx context.Context, jobID string) (bool, error) {
	status, err := e.Jobs.Status(ctx, jobID)
	if err != nil {
		e.Logger.Warn().Err(err).Str("job_id", jobID).Msg("dispatch: cancellation check failed")
		return false, err
	}
	return status == domain.JobStatusCancelled, nil
}

// raiseBudget grows the output budget by half after a truncated response,
// up to the hard ceiling.
func raiseBudget(budget int) int {
	raised := budget + budget/2
	if raised > domain.HardMaxOutputTokens {
		return domain.HardMaxOutputTokens
	}
	return raised
}

func credentialPrefix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
