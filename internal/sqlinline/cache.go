package sqlinline

const QSelectCacheEntry = `--sql bfd8123b-ca18-4b49-bb34-c7912e1535f4
select fingerprint, plan_type, payload, created_at, expires_at,
       hit_count, last_accessed_at
from generation_cache
where fingerprint = $1::text and expires_at > now();
`

const QUpsertCacheEntry = `--sql edb5b07e-3b86-4ffd-a384-cfe1251d1a33
insert into generation_cache(
    fingerprint, plan_type, payload, created_at, expires_at,
    hit_count, last_accessed_at
)
values ($1::text, $2::text, $3::jsonb, now(), now() + make_interval(secs => $4::float8), 0, now())
on conflict (fingerprint) do update
set plan_type = excluded.plan_type,
    payload = excluded.payload,
    created_at = now(),
    expires_at = excluded.expires_at;
`

const QTouchCacheEntry = `--sql 3614c77d-f49e-400e-9cf8-876da3b06621
update generation_cache
set hit_count = hit_count + 1, last_accessed_at = now()
where fingerprint = $1::text;
`

const QSweepExpiredCache = `--sql 4c6bffa2-36c6-45be-ad8a-a5c83930bf09
delete from generation_cache where expires_at < now();
`
