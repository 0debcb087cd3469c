package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"plangen/internal/domain"
	"plangen/internal/providers/genai"
)

// memJobs is an in-memory JobRepository covering what the worker touches.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	m := &memJobs{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) CreateOrReuse(_ context.Context, job *domain.Job) (*domain.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job, false, nil
}

func (m *memJobs) CreateCompleted(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) Claim(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusPending {
		return nil, domain.ErrAlreadyClaimed
	}
	j.Status = domain.JobStatusProcessing
	return j, nil
}

func (m *memJobs) ClaimNext(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusPending {
			j.Status = domain.JobStatusProcessing
			return j, nil
		}
	}
	return nil, domain.ErrNoJobAvailable
}

func (m *memJobs) Complete(_ context.Context, jobID, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrTerminalState
	}
	j.Status = domain.JobStatusCompleted
	j.ResultRef = resultRef
	return nil
}

func (m *memJobs) Fail(_ context.Context, jobID string, code domain.ErrorCode, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrTerminalState
	}
	j.Status = domain.JobStatusFailed
	j.ErrorCode = code
	j.ErrorMessage = message
	return nil
}

func (m *memJobs) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrTerminalState
	}
	j.Status = domain.JobStatusCancelled
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) Status(_ context.Context, jobID string) (domain.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return j.Status, nil
}

func (m *memJobs) IncrementRetry(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	j.RetryCount++
	return j.RetryCount, nil
}

func (m *memJobs) SweepStale(context.Context, time.Duration) (int64, error) { return 0, nil }
func (m *memJobs) SweepExpired(context.Context) (int64, error)              { return 0, nil }

type memCache struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*domain.CacheEntry{}}
}

func (m *memCache) Get(_ context.Context, fingerprint string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[fingerprint], nil
}

func (m *memCache) Put(_ context.Context, fingerprint string, planType domain.PlanType, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fingerprint] = &domain.CacheEntry{
		Fingerprint: fingerprint,
		PlanType:    planType,
		Payload:     payload,
	}
	return nil
}

func (m *memCache) Touch(context.Context, string) error         { return nil }
func (m *memCache) SweepExpired(context.Context) (int64, error) { return 0, nil }

func newTestWorker(jobs *memJobs, cache domain.CacheRepository, exec *Executor) *Worker {
	return &Worker{
		Jobs:   jobs,
		Cache:  cache,
		Exec:   exec,
		TTL:    TTLPolicy{Plans: 7 * 24 * time.Hour, Default: 24 * time.Hour},
		Logger: zerolog.Nop(),
	}
}

func TestWorkerProcessCompletesJob(t *testing.T) {
	job := testJob()
	jobs := newMemJobs(job)
	cache := newMemCache()

	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		return okResult(`{"days":[]}`), nil
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)

	w.process(context.Background(), 0, job)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", stored.Status)
	}
	if stored.ResultRef != job.Fingerprint {
		t.Fatalf("result ref = %q, want fingerprint %q", stored.ResultRef, job.Fingerprint)
	}
	entry, _ := cache.Get(context.Background(), job.Fingerprint)
	if entry == nil {
		t.Fatal("result not cached")
	}
	if string(entry.Payload) != `{"days":[]}` {
		t.Fatalf("cached payload: %s", entry.Payload)
	}
}

func TestWorkerProcessFailsJobWithCode(t *testing.T) {
	job := testJob()
	job.MaxRetries = 0
	jobs := newMemJobs(job)
	cache := newMemCache()

	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		return nil, &genai.APIError{StatusCode: 503, Status: "UNAVAILABLE", Category: genai.CategoryTransient}
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)

	w.process(context.Background(), 0, job)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", stored.Status)
	}
	if stored.ErrorCode != domain.CodeTransientNetwork {
		t.Fatalf("error code = %q, want %s", stored.ErrorCode, domain.CodeTransientNetwork)
	}
	if entry, _ := cache.Get(context.Background(), job.Fingerprint); entry != nil {
		t.Fatal("failed job must not populate the cache")
	}
}

func TestWorkerCancelledJobWritesNothing(t *testing.T) {
	job := testJob()
	job.Status = domain.JobStatusCancelled
	jobs := newMemJobs(job)
	cache := newMemCache()

	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		t.Fatal("upstream must not run for a cancelled job")
		return nil, nil
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)

	w.process(context.Background(), 0, job)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCancelled {
		t.Fatalf("job status = %s, want cancelled", stored.Status)
	}
	if entry, _ := cache.Get(context.Background(), job.Fingerprint); entry != nil {
		t.Fatal("cancelled job must not populate the cache")
	}
}

// flakyCache fails the first failures Put calls, then behaves normally.
type flakyCache struct {
	*memCache
	mu       sync.Mutex
	failures int
	puts     int
}

func (c *flakyCache) Put(ctx context.Context, fingerprint string, planType domain.PlanType, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.puts++
	fail := c.puts <= c.failures
	c.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return c.memCache.Put(ctx, fingerprint, planType, payload, ttl)
}

func TestWorkerRetriesResultPersist(t *testing.T) {
	job := testJob()
	jobs := newMemJobs(job)
	cache := &flakyCache{memCache: newMemCache(), failures: 2}

	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		return okResult(`{"days":[]}`), nil
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)
	w.resultRetryDelay = time.Millisecond

	w.process(context.Background(), 0, job)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", stored.Status)
	}
	if entry, _ := cache.Get(context.Background(), job.Fingerprint); entry == nil {
		t.Fatal("result not cached after retries")
	}
	if cache.puts != 3 {
		t.Fatalf("cache puts = %d, want 3", cache.puts)
	}
}

func TestWorkerFailsJobWhenResultStoreDown(t *testing.T) {
	job := testJob()
	jobs := newMemJobs(job)
	cache := &flakyCache{memCache: newMemCache(), failures: resultPutAttempts}

	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		return okResult(`{"days":[]}`), nil
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)
	w.resultRetryDelay = time.Millisecond

	w.process(context.Background(), 0, job)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", stored.Status)
	}
	if stored.ErrorCode != domain.CodeTransientNetwork {
		t.Fatalf("error code = %q", stored.ErrorCode)
	}
	if !strings.Contains(stored.ErrorMessage, "result store unavailable") {
		t.Fatalf("error message should name the result store: %q", stored.ErrorMessage)
	}
}

func TestWorkerShutdownLeavesJobProcessing(t *testing.T) {
	job := testJob()
	jobs := newMemJobs(job)
	cache := newMemCache()

	ctx, cancel := context.WithCancel(context.Background())
	creds := newFakeCreds("a")
	up := &fakeUpstream{generate: func(int, genai.GenerateRequest) (*genai.GenerateResult, error) {
		cancel()
		return nil, context.Canceled
	}}
	exec := newTestExecutor(creds, up, jobs)
	w := newTestWorker(jobs, cache, exec)

	w.process(ctx, 0, job)

	// Interrupted jobs stay processing so the stale sweeper reclaims them.
	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusProcessing {
		t.Fatalf("job status = %s, want processing", stored.Status)
	}
}

func TestTTLPolicy(t *testing.T) {
	p := TTLPolicy{Plans: 7 * 24 * time.Hour, Default: 24 * time.Hour}
	if got := p.For(domain.PlanTypeWorkout); got != 7*24*time.Hour {
		t.Fatalf("workout TTL = %v", got)
	}
	if got := p.For(domain.PlanType("unknown")); got != 24*time.Hour {
		t.Fatalf("unknown TTL = %v", got)
	}
	if got := (TTLPolicy{}).For(domain.PlanTypeMeal); got != 24*time.Hour {
		t.Fatalf("zero policy TTL = %v", got)
	}
}
