package sqlinline

const QInsertJob = `--sql fe66d099-6839-4862-9457-aca58728b384
insert into generation_jobs(
    id, user_id, plan_type, fingerprint, params_json, schema_json,
    status, retry_count, max_retries, temperature, max_output_tokens,
    result_ref, completed_at, expires_at
)
values (
    $1::uuid, $2::uuid, $3::text, $4::text, $5::jsonb, $6::jsonb,
    $7::text, 0, $8::int, $9::float8, $10::int,
    $11::text, $12::timestamptz, now() + make_interval(secs => $13::float8)
);
`

const QSelectActiveJobByUser = `--sql 8f0eb97c-4b88-4b1c-ab37-24a0c7be4fee
select id, user_id, plan_type, fingerprint, params_json, schema_json,
       status, retry_count, max_retries, temperature, max_output_tokens,
       result_ref, error_code, error_message,
       created_at, started_at, completed_at, expires_at
from generation_jobs
where user_id = $1::uuid and status in ('pending', 'processing')
limit 1;
`

const QSelectJobByID = `--sql 2558e2c6-0ea0-42a9-97fb-e7880116d32a
select id, user_id, plan_type, fingerprint, params_json, schema_json,
       status, retry_count, max_retries, temperature, max_output_tokens,
       result_ref, error_code, error_message,
       created_at, started_at, completed_at, expires_at
from generation_jobs
where id = $1::uuid;
`

const QSelectJobStatus = `--sql 223d98ce-42f8-4f2e-be71-43cd9e203354
select status from generation_jobs where id = $1::uuid;
`

const QClaimJob = `--sql ba66f426-f147-4e93-a614-85b69a6002eb
update generation_jobs
set status = 'processing', started_at = now()
where id = $1::uuid and status = 'pending'
returning id, user_id, plan_type, fingerprint, params_json, schema_json,
          status, retry_count, max_retries, temperature, max_output_tokens,
          result_ref, error_code, error_message,
          created_at, started_at, completed_at, expires_at;
`

const QClaimNextJob = `--sql 2145f3ee-b996-4bcb-95e7-2696f4ea0102
with next_job as (
    select id
    from generation_jobs
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update generation_jobs
    set status = 'processing', started_at = now()
    where id in (select id from next_job)
    returning id, user_id, plan_type, fingerprint, params_json, schema_json,
              status, retry_count, max_retries, temperature, max_output_tokens,
              result_ref, error_code, error_message,
              created_at, started_at, completed_at, expires_at
)
select * from claimed;
`

const QCompleteJob = `--sql 60014afc-26a5-453b-b440-f04dafe7603a
update generation_jobs
set status = 'completed', result_ref = $2::text, completed_at = now()
where id = $1::uuid and status not in ('completed', 'failed', 'cancelled');
`

const QFailJob = `--sql fa8b07d5-71c0-4295-8e72-1de469785197
update generation_jobs
set status = 'failed', error_code = $2::text, error_message = $3::text,
    completed_at = now()
where id = $1::uuid and status not in ('completed', 'failed', 'cancelled');
`

const QCancelJob = `--sql cdd982e7-cf73-4aa5-ae81-972ceee9364c
update generation_jobs
set status = 'cancelled', completed_at = now()
where id = $1::uuid and status in ('pending', 'processing');
`

const QIncrementJobRetry = `--sql 223afe21-18cd-4f6f-878f-90255b0a4981
update generation_jobs
set retry_count = retry_count + 1
where id = $1::uuid
returning retry_count;
`

const QSweepStaleJobs = `--sql f5191b48-05b6-4eb8-af60-070c37ac1c2a
update generation_jobs
set status = 'failed', error_code = 'JOB_TIMEOUT',
    error_message = 'processing exceeded the per-job timeout',
    completed_at = now()
where status = 'processing' and started_at < now() - make_interval(secs => $1::float8);
`

const QSweepExpiredJobs = `--sql ceab4a8e-5723-45bb-a646-2bbbc969aa79
delete from generation_jobs where expires_at < now();
`
