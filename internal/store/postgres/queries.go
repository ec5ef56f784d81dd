package postgres

// Expected schema:
//
//	CREATE TABLE sources (
//	    id              UUID PRIMARY KEY,
//	    name            TEXT NOT NULL UNIQUE,
//	    query           TEXT NOT NULL,
//	    interval_ms     BIGINT NOT NULL,
//	    cron_expression TEXT,
//	    enabled         BOOLEAN NOT NULL DEFAULT TRUE,
//	    last_run_at     TIMESTAMPTZ,
//	    last_run_status TEXT,
//	    last_run_ms     BIGINT,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);

const queryGetEnabledSources = `
SELECT id, name, query, interval_ms, COALESCE(cron_expression, ''), enabled, created_at, updated_at
FROM sources
WHERE enabled = TRUE
ORDER BY id`

const queryListSources = `
SELECT id, name, query, interval_ms, COALESCE(cron_expression, ''), enabled, created_at, updated_at
FROM sources
ORDER BY id
LIMIT $1 OFFSET $2`

const queryGetSourceByID = `
SELECT id, name, query, interval_ms, COALESCE(cron_expression, ''), enabled, created_at, updated_at
FROM sources
WHERE id = $1`

const queryInsertSource = `
INSERT INTO sources (id, name, query, interval_ms, cron_expression, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`

const queryUpdateSource = `
UPDATE sources
SET name = $2, query = $3, interval_ms = $4, cron_expression = NULLIF($5, ''), enabled = $6, updated_at = $7
WHERE id = $1
RETURNING id`

const queryDeleteSource = `
DELETE FROM sources
WHERE id = $1
RETURNING id`

const queryRecordFailure = `
UPDATE sources
SET last_run_at = $2, last_run_status = 'error', last_run_ms = $3
WHERE id = $1`
