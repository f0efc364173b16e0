package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the durable tables the pipeline writes. The dedup
// constraints live here: one company row per identity, one posting row per
// (external_id, source, country) triple. The migration ledger table is
// owned by the migrate package, which creates and drops it.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
	   id           VARCHAR(16) PRIMARY KEY,
	   display_name TEXT NOT NULL,
	   city         TEXT NOT NULL DEFAULT '',
	   state        TEXT NOT NULL DEFAULT '',
	   country      TEXT NOT NULL DEFAULT '',
	   latitude     DOUBLE PRECISION,
	   longitude    DOUBLE PRECISION,
	   description  TEXT
	 )`,
	`CREATE TABLE IF NOT EXISTS postings (
	   id            VARCHAR(16) PRIMARY KEY,
	   external_id   TEXT NOT NULL,
	   source        TEXT NOT NULL,
	   country       TEXT NOT NULL,
	   title         TEXT NOT NULL,
	   description   TEXT NOT NULL DEFAULT '',
	   company_id    VARCHAR(16) NOT NULL,
	   location      TEXT NOT NULL DEFAULT '',
	   city          TEXT NOT NULL DEFAULT '',
	   state         TEXT NOT NULL DEFAULT '',
	   salary_min    DOUBLE PRECISION NOT NULL DEFAULT 0,
	   salary_max    DOUBLE PRECISION NOT NULL DEFAULT 0,
	   salary_median DOUBLE PRECISION NOT NULL DEFAULT 0,
	   salary_raw    DOUBLE PRECISION NOT NULL DEFAULT 0,
	   remote        BOOLEAN NOT NULL DEFAULT FALSE,
	   contract_type TEXT NOT NULL DEFAULT '',
	   source_url    TEXT NOT NULL DEFAULT '',
	   category      TEXT NOT NULL DEFAULT '',
	   listed_at     TIMESTAMPTZ,
	   imported_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	   UNIQUE (external_id, source, country)
	 )`,
	`CREATE TABLE IF NOT EXISTS posting_skills (
	   posting_id VARCHAR(16) NOT NULL,
	   skill      TEXT NOT NULL,
	   PRIMARY KEY (posting_id, skill)
	 )`,
	`CREATE TABLE IF NOT EXISTS quota_usage (
	   period_kind   TEXT NOT NULL,
	   period_key    TEXT NOT NULL,
	   request_count INTEGER NOT NULL DEFAULT 0,
	   PRIMARY KEY (period_kind, period_key)
	 )`,
}

// EnsureSchema creates missing tables. Idempotent; run at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
