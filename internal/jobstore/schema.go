package jobstore

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id           UUID PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	subject          TEXT NOT NULL,
	job_type         TEXT NOT NULL,
	payload          TEXT NOT NULL,
	state            TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	max_attempts     INTEGER NOT NULL,
	next_attempt_at  TIMESTAMPTZ NOT NULL,
	lease_expires_at TIMESTAMPTZ,
	worker_id        TEXT,
	last_error       TEXT,
	idempotency_key  TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_due
	ON jobs (state, next_attempt_at, created_at);

CREATE INDEX IF NOT EXISTS idx_jobs_lease
	ON jobs (lease_expires_at) WHERE state = 'PROCESSING';

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem
	ON jobs (idempotency_key) WHERE idempotency_key IS NOT NULL;
`

// EnsureSchema creates the jobs table and indexes if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
