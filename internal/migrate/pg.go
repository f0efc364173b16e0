package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// PG implements CompanySource, LedgerStore and TxStore against PostgreSQL.
// The ledger lives in the identity_migration table, created on Replace and
// dropped by the applier.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG returns migration storage backed by the given pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// ─── CompanySource ───────────────────────────────────────────────────────────

// ListCompanies returns every live company, identity first.
func (s *PG) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, city, state, country FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.City, &c.State, &c.Country); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ─── LedgerStore ─────────────────────────────────────────────────────────────

// Replace recreates the ledger table and bulk-loads the rows.
func (s *PG) Replace(ctx context.Context, mappings []model.MigrationMapping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if _, err := tx.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS identity_migration (
		   old_id          VARCHAR(16) PRIMARY KEY,
		   new_id          VARCHAR(16) NOT NULL,
		   normalized_name TEXT NOT NULL
		 )`); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	if _, err := tx.Exec(ctx, `TRUNCATE identity_migration`); err != nil {
		return fmt.Errorf("truncate ledger: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"identity_migration"},
		[]string{"old_id", "new_id", "normalized_name"},
		pgx.CopyFromSlice(len(mappings), func(i int) ([]any, error) {
			m := mappings[i]
			return []any{m.OldID, m.NewID, m.NormalizedName}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy ledger rows: %w", err)
	}
	return tx.Commit(ctx)
}

// Load returns every ledger row. A missing ledger table reads as empty, so
// the precondition checks report "ledger empty" rather than a SQL error.
func (s *PG) Load(ctx context.Context) ([]model.MigrationMapping, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT to_regclass('identity_migration') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ledger table: %w", err)
	}
	if !exists {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT old_id, new_id, normalized_name FROM identity_migration ORDER BY old_id`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []model.MigrationMapping
	for rows.Next() {
		var m model.MigrationMapping
		if err := rows.Scan(&m.OldID, &m.NewID, &m.NormalizedName); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update rewrites the new identities of the given rows, keyed by old identity.
func (s *PG) Update(ctx context.Context, mappings []model.MigrationMapping) error {
	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(`UPDATE identity_migration SET new_id = $2 WHERE old_id = $1`, m.OldID, m.NewID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	return nil
}

// ─── TxStore ─────────────────────────────────────────────────────────────────

// Begin opens the applier's exclusive transaction.
func (s *PG) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) RewriteCompanies(ctx context.Context, _ []model.MigrationMapping) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE companies c
		 SET id = m.new_id
		 FROM identity_migration m
		 WHERE c.id = m.old_id AND m.new_id <> m.old_id`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) RewritePostings(ctx context.Context, _ []model.MigrationMapping) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE postings p
		 SET company_id = m.new_id
		 FROM identity_migration m
		 WHERE p.company_id = m.old_id AND m.new_id <> m.old_id`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) CountOrphans(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM postings p
		 LEFT JOIN companies c ON c.id = p.company_id
		 WHERE c.id IS NULL`).Scan(&n)
	return n, err
}

func (t *pgTx) DropLedger(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DROP TABLE identity_migration`)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
