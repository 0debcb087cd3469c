package repo

import (
	"context"
	"time"

	"plangen/internal/domain"
	"plangen/internal/infra"
	"plangen/internal/sqlinline"
)

// CacheRepoPG implements domain.CacheRepository on Postgres. Reads compare
// expires_at against the database clock, and the sweep deletes conditionally
// on the same predicate, so a concurrently refreshed entry is never removed.
type CacheRepoPG struct {
	sql infra.SQLExecutor
}

func NewCacheRepo(sql infra.SQLExecutor) *CacheRepoPG {
	return &CacheRepoPG{sql: sql}
}

func (r *CacheRepoPG) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	err := r.sql.QueryRow(ctx, sqlinline.QSelectCacheEntry, fingerprint).Scan(
		&e.Fingerprint,
		&e.PlanType,
		&e.Payload,
		&e.CreatedAt,
		&e.ExpiresAt,
		&e.HitCount,
		&e.LastAccessedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *CacheRepoPG) Put(ctx context.Context, fingerprint string, planType domain.PlanType, payload []byte, ttl time.Duration) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertCacheEntry, fingerprint, planType, payload, ttl.Seconds())
	return err
}

func (r *CacheRepoPG) Touch(ctx context.Context, fingerprint string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QTouchCacheEntry, fingerprint)
	return err
}

func (r *CacheRepoPG) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSweepExpiredCache)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.CacheRepository = (*CacheRepoPG)(nil)
