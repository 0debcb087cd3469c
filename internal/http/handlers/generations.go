package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plangen/internal/domain"
	"plangen/internal/fingerprint"
	"plangen/internal/metrics"
	"plangen/internal/middleware"
)

type submitRequest struct {
	PlanType   domain.PlanType     `json:"plan_type"`
	Params     json.RawMessage     `json:"params"`
	Schema     json.RawMessage     `json:"schema"`
	MaxRetries int                 `json:"max_retries"`
	Model      domain.ModelOptions `json:"model"`
}

type jobResponse struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	Cached       bool             `json:"cached,omitempty"`
	Reused       bool             `json:"reused,omitempty"`
	RetryCount   int              `json:"retry_count"`
	MaxRetries   int              `json:"max_retries"`
	ResultRef    string           `json:"result_ref,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Submit accepts a generation request: synchronous acceptance, asynchronous
// completion. Repeat submissions while a job is active return the same job;
// a cached result short-circuits the dispatcher entirely.
func (a *App) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Params) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "params are required")
		return
	}
	if req.PlanType == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "plan_type is required")
		return
	}

	gen := domain.GenerationRequest{
		UserID:     userID,
		PlanType:   req.PlanType,
		Schema:     req.Schema,
		MaxRetries: req.MaxRetries,
		Model:      req.Model,
	}
	gen.Normalize()

	fp, err := fingerprint.ComputeRequest(string(req.PlanType), req.Params, req.Schema)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "params must be a JSON object and schema valid JSON")
		return
	}

	entry, err := a.Cache.Get(r.Context(), fp)
	if err != nil {
		a.Logger.Error().Err(err).Str("fingerprint", fp).Msg("api: cache lookup failed")
	}
	if entry != nil {
		metrics.CacheHitsTotal.Inc()
		metrics.JobsSubmittedTotal.WithLabelValues(string(req.PlanType), "cache_hit").Inc()
		if touchErr := a.Cache.Touch(r.Context(), fp); touchErr != nil {
			a.Logger.Warn().Err(touchErr).Str("fingerprint", fp).Msg("api: cache touch failed")
		}
		job := &domain.Job{
			UserID:       userID,
			PlanType:     req.PlanType,
			Fingerprint:  fp,
			Params:       req.Params,
			Schema:       req.Schema,
			MaxRetries:   gen.MaxRetries,
			Temperature:  gen.Model.Temperature,
			MaxOutputTok: gen.Model.MaxOutputTokens,
			ResultRef:    fp,
		}
		if createErr := a.Jobs.CreateCompleted(r.Context(), job); createErr != nil {
			a.Logger.Error().Err(createErr).Str("fingerprint", fp).Msg("api: record cache-served job failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to record job")
			return
		}
		a.json(w, http.StatusOK, jobResponse{
			JobID:      job.ID,
			Status:     domain.JobStatusCompleted,
			Cached:     true,
			MaxRetries: job.MaxRetries,
			ResultRef:  fp,
		})
		return
	}
	metrics.CacheMissesTotal.Inc()

	job := &domain.Job{
		UserID:       userID,
		PlanType:     req.PlanType,
		Fingerprint:  fp,
		Params:       req.Params,
		Schema:       req.Schema,
		MaxRetries:   gen.MaxRetries,
		Temperature:  gen.Model.Temperature,
		MaxOutputTok: gen.Model.MaxOutputTokens,
	}
	created, reused, err := a.Jobs.CreateOrReuse(r.Context(), job)
	if err != nil {
		if errors.Is(err, domain.ErrJobConflict) {
			metrics.JobsSubmittedTotal.WithLabelValues(string(req.PlanType), "conflict").Inc()
			resp := map[string]string{
				"error":   "job_conflict",
				"message": "an active job with different parameters exists; cancel it first",
			}
			if created != nil {
				resp["active_job_id"] = created.ID
			}
			a.json(w, http.StatusConflict, resp)
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("api: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	status := http.StatusAccepted
	outcome := "created"
	if reused {
		status = http.StatusOK
		outcome = "reused"
	}
	metrics.JobsSubmittedTotal.WithLabelValues(string(req.PlanType), outcome).Inc()
	a.json(w, status, jobResponse{
		JobID:      created.ID,
		Status:     created.Status,
		Reused:     reused,
		RetryCount: created.RetryCount,
		MaxRetries: created.MaxRetries,
	})
}

// Status reports the lifecycle state of one job.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, jobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		ResultRef:    job.ResultRef,
		ErrorCode:    string(job.ErrorCode),
		ErrorMessage: job.ErrorMessage,
	})
}

// Result serves the generated payload for a completed job.
func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCompleted {
		a.error(w, http.StatusConflict, "not_ready", "job has not completed")
		return
	}
	entry, err := a.Cache.Get(r.Context(), job.ResultRef)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: result lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load result")
		return
	}
	if entry == nil {
		a.error(w, http.StatusGone, "result_expired", "the cached result has expired; resubmit the request")
		return
	}
	if err := a.Cache.Touch(r.Context(), job.ResultRef); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("api: cache touch failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Payload)
}

// Cancel aborts a pending or processing job. Terminal jobs report conflict.
func (a *App) Cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	if err := a.Jobs.Cancel(r.Context(), job.ID); err != nil {
		if errors.Is(err, domain.ErrTerminalState) {
			a.error(w, http.StatusConflict, "terminal", "job already finished")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"job_id": job.ID, "status": string(domain.JobStatusCancelled)})
}

func (a *App) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}
