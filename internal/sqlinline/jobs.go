package sqlinline

const QEnsureJobsTable = `--sql 3c1f9a52-7b4e-4d2a-9f61-2e8b5c0d7a14
create table if not exists consolidation_jobs (
    id                  text primary key,
    state               text not null,
    mode                text not null,
    year                text not null default '',
    contract_number     text not null default '',
    progress            double precision not null default 0,
    message             text not null default '',
    contracts_total     integer not null default 0,
    contracts_processed integer not null default 0,
    started_at          timestamptz not null,
    finished_at         timestamptz,
    artifacts           jsonb not null default '[]'::jsonb,
    errors              jsonb not null default '[]'::jsonb,
    total_logs          integer not null default 0
);
`

const QUpsertJob = `--sql 8a4d2e61-0c3b-4f7e-b5a9-6d1e3f2c8b07
insert into consolidation_jobs (
    id, state, mode, year, contract_number, progress, message,
    contracts_total, contracts_processed, started_at, finished_at,
    artifacts, errors, total_logs
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
on conflict (id) do update set
    state = excluded.state,
    progress = excluded.progress,
    message = excluded.message,
    contracts_total = excluded.contracts_total,
    contracts_processed = excluded.contracts_processed,
    finished_at = excluded.finished_at,
    artifacts = excluded.artifacts,
    errors = excluded.errors,
    total_logs = excluded.total_logs;
`

const QSelectJob = `--sql 5e7b0d93-2f1a-4c68-8e4d-9b3a6c1f0e25
select id, state, mode, year, contract_number, progress, message,
       contracts_total, contracts_processed, started_at, finished_at,
       artifacts, errors, total_logs
from consolidation_jobs
where id = $1;
`

const QListRecentJobs = `--sql c2d9f4a7-6e3b-4b15-a0c8-7f5e1d2b9a36
select id, state, mode, year, contracts_total, started_at, finished_at,
       jsonb_array_length(artifacts)
from consolidation_jobs
order by started_at desc
limit $1;
`
