package sqlinline

const QSelectCredentials = `--sql 46df66e2-6358-48c8-870a-47a0a5fe8a83
select id, provider, api_key, blocked_until, fatal, fatal_reason, last_used_at
from api_credentials
where provider = $1::text
order by created_at asc;
`

const QUpsertCredential = `--sql c11b2f73-60a3-4044-95c2-218820786eb2
insert into api_credentials(id, provider, api_key, fatal, fatal_reason, created_at, updated_at)
values ($1::text, $2::text, $3::text, false, '', now(), now())
on conflict (id) do update
set api_key = excluded.api_key,
    provider = excluded.provider,
    fatal = false,
    fatal_reason = '',
    blocked_until = null,
    updated_at = now();
`

const QBlockCredential = `--sql 39f796bc-3177-4811-91bc-1b9fe26cf6f0
update api_credentials
set blocked_until = $2::timestamptz, updated_at = now()
where id = $1::text;
`

const QMarkCredentialFatal = `--sql cb16e3db-7504-45c4-a517-c950aa4673a2
update api_credentials
set fatal = true, fatal_reason = $2::text, updated_at = now()
where id = $1::text;
`

const QUnblockCredential = `--sql b99625dd-83f7-4cc1-b8e5-5a9b9a60a71e
update api_credentials
set blocked_until = null, fatal = false, fatal_reason = '', updated_at = now()
where id = $1::text;
`

const QTouchCredential = `--sql 52a8c49c-eabd-4b85-9fb1-d3a730098578
update api_credentials
set last_used_at = $2::timestamptz, updated_at = now()
where id = $1::text;
`
