package credentials

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoneAvailable is returned by Select when every credential is blocked.
// Callers must treat it as "no retry path", never as a reason to spin.
var ErrNoneAvailable = errors.New("credentials: none available")

// Lease is the caller-facing view of a selected credential. The underlying
// record never leaves the pool.
type Lease struct {
	ID     string
	APIKey string
}

type credState struct {
	Record
	softFails int
}

// Persister receives state changes so blocks survive restarts. Writes are
// best-effort; a failed write only loses durability, not correctness.
type Persister interface {
	MarkBlocked(ctx context.Context, id string, until time.Time) error
	MarkFatal(ctx context.Context, id, reason string) error
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

// Pool holds N upstream credentials and hands them out least-recently-used
// first. All state transitions go through Select and the Report methods,
// which serialize on one mutex so concurrent workers observe a linearizable
// history.
type Pool struct {
	mu       sync.Mutex
	creds    []*credState
	cooldown time.Duration
	store    Persister
	logger   zerolog.Logger
	now      func() time.Time
}

// PoolOptions configures a credential pool.
type PoolOptions struct {
	Cooldown time.Duration
	Store    Persister
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewPool builds a pool from persisted records.
func NewPool(records []Record, opts PoolOptions) *Pool {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	p := &Pool{cooldown: cooldown, store: opts.Store, logger: opts.Logger, now: now}
	for _, r := range records {
		p.creds = append(p.creds, &credState{Record: r})
	}
	return p
}

// Select returns the least-recently-used credential that is neither fatally
// marked nor inside a cooldown window, stamping last_used_at before the lock
// is released so two concurrent callers never both see it as fresh.
func (p *Pool) Select() (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var chosen *credState
	for _, c := range p.creds {
		if c.Fatal {
			continue
		}
		if c.BlockedUntil != nil && c.BlockedUntil.After(now) {
			continue
		}
		if chosen == nil || olderUse(c, chosen) {
			chosen = c
		}
	}
	if chosen == nil {
		return Lease{}, ErrNoneAvailable
	}
	used := now
	chosen.LastUsedAt = &used
	return Lease{ID: chosen.ID, APIKey: chosen.APIKey}, nil
}

func olderUse(a, b *credState) bool {
	if a.LastUsedAt == nil {
		return b.LastUsedAt != nil
	}
	if b.LastUsedAt == nil {
		return false
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

// ReportSuccess clears soft-failure counters for id.
func (p *Pool) ReportSuccess(ctx context.Context, id string) {
	p.mu.Lock()
	c := p.find(id)
	if c != nil {
		c.softFails = 0
	}
	p.mu.Unlock()
	if c != nil && p.store != nil {
		if err := p.store.MarkUsed(ctx, id, p.now()); err != nil {
			p.logger.Warn().Err(err).Str("credential_id", id).Msg("credentials: persist last_used_at failed")
		}
	}
}

// ReportQuotaExceeded puts id on cooldown. The credential becomes eligible
// again once the cooldown elapses; it is never removed.
func (p *Pool) ReportQuotaExceeded(ctx context.Context, id string, cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = p.cooldown
	}
	until := p.now().Add(cooldown)

	p.mu.Lock()
	c := p.find(id)
	if c != nil {
		c.BlockedUntil = &until
		c.softFails++
	}
	p.mu.Unlock()
	if c == nil {
		return
	}
	p.logger.Warn().Str("credential_id", id).Time("blocked_until", until).Msg("credentials: quota exceeded, cooling down")
	if p.store != nil {
		if err := p.store.MarkBlocked(ctx, id, until); err != nil {
			p.logger.Warn().Err(err).Str("credential_id", id).Msg("credentials: persist block failed")
		}
	}
}

// ReportFatal blocks id until manual intervention (e.g. the key was revoked).
func (p *Pool) ReportFatal(ctx context.Context, id, reason string) {
	p.mu.Lock()
	c := p.find(id)
	if c != nil {
		c.Fatal = true
		c.FatalReason = reason
	}
	p.mu.Unlock()
	if c == nil {
		return
	}
	p.logger.Error().Str("credential_id", id).Str("reason", reason).Msg("credentials: marked fatal")
	if p.store != nil {
		if err := p.store.MarkFatal(ctx, id, reason); err != nil {
			p.logger.Warn().Err(err).Str("credential_id", id).Msg("credentials: persist fatal failed")
		}
	}
}

// Available counts credentials currently eligible for Select.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for _, c := range p.creds {
		if c.Fatal {
			continue
		}
		if c.BlockedUntil != nil && c.BlockedUntil.After(now) {
			continue
		}
		n++
	}
	return n
}

// Size returns the total number of credentials, blocked or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

func (p *Pool) find(id string) *credState {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}
