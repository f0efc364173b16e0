// Package quota enforces the upstream API request budget: a persisted
// multi-period tracker shared by every run of the pipeline, and a run-local
// rate limiter that paces requests inside one run.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// PeriodKeys are the storage keys for the three tracked windows at a given
// instant, e.g. {"2026-02-15", "2026-W07", "2026-02"}.
type PeriodKeys struct {
	Daily   string
	Weekly  string
	Monthly string
}

// CurrentPeriods derives the period keys for now. Weeks are ISO weeks.
func CurrentPeriods(now time.Time) PeriodKeys {
	year, week := now.ISOWeek()
	return PeriodKeys{
		Daily:   now.Format("2006-01-02"),
		Weekly:  fmt.Sprintf("%04d-W%02d", year, week),
		Monthly: now.Format("2006-01"),
	}
}

// Store is the durable counter storage. Increment must be atomic at the
// storage layer — concurrent runs adding to the same period key must never
// under-count combined usage.
type Store interface {
	Increment(ctx context.Context, keys PeriodKeys, n int) error
	Usage(ctx context.Context, keys PeriodKeys) (model.QuotaUsage, error)
}

// Tracker reads and advances the shared request counters. Any storage error
// propagates: the caller must fail closed rather than ingest unmetered.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker returns a Tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Usage returns the request counts for the current period keys.
func (t *Tracker) Usage(ctx context.Context) (model.QuotaUsage, error) {
	u, err := t.store.Usage(ctx, CurrentPeriods(t.now()))
	if err != nil {
		return model.QuotaUsage{}, fmt.Errorf("quota usage: %w", err)
	}
	return u, nil
}

// Increment adds n requests to all three current period rows.
func (t *Tracker) Increment(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := t.store.Increment(ctx, CurrentPeriods(t.now()), n); err != nil {
		return fmt.Errorf("quota increment: %w", err)
	}
	return nil
}

// CheckLimits compares current usage to the supplied ceilings and reports
// the first exceeded tier, daily before weekly before monthly. A zero
// ceiling disables that tier.
func (t *Tracker) CheckLimits(ctx context.Context, limits model.QuotaLimits) (allowed bool, exceeded string, err error) {
	u, err := t.Usage(ctx)
	if err != nil {
		return false, "", err
	}
	switch {
	case limits.Daily > 0 && u.Daily >= limits.Daily:
		return false, "daily", nil
	case limits.Weekly > 0 && u.Weekly >= limits.Weekly:
		return false, "weekly", nil
	case limits.Monthly > 0 && u.Monthly >= limits.Monthly:
		return false, "monthly", nil
	}
	return true, "", nil
}

// ─── Postgres store ──────────────────────────────────────────────────────────

// PGStore persists counters in the quota_usage table, one row per
// (period_kind, period_key). A missing row reads as zero.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Increment upserts all three period rows in one statement, so the
// read-modify-write happens inside Postgres, not in the application.
func (s *PGStore) Increment(ctx context.Context, keys PeriodKeys, n int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota_usage (period_kind, period_key, request_count)
		 VALUES ('daily', $1, $4), ('weekly', $2, $4), ('monthly', $3, $4)
		 ON CONFLICT (period_kind, period_key)
		 DO UPDATE SET request_count = quota_usage.request_count + EXCLUDED.request_count`,
		keys.Daily, keys.Weekly, keys.Monthly, n,
	)
	return err
}

// Usage reads the counters for the given period keys.
func (s *PGStore) Usage(ctx context.Context, keys PeriodKeys) (model.QuotaUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT period_kind, request_count FROM quota_usage
		 WHERE (period_kind = 'daily'   AND period_key = $1)
		    OR (period_kind = 'weekly'  AND period_key = $2)
		    OR (period_kind = 'monthly' AND period_key = $3)`,
		keys.Daily, keys.Weekly, keys.Monthly,
	)
	if err != nil {
		return model.QuotaUsage{}, err
	}
	defer rows.Close()

	var u model.QuotaUsage
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return model.QuotaUsage{}, err
		}
		switch kind {
		case "daily":
			u.Daily = count
		case "weekly":
			u.Weekly = count
		case "monthly":
			u.Monthly = count
		}
	}
	return u, rows.Err()
}
