package migrate

import (
	"context"
	"fmt"
	"log"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// TxStore opens the exclusive transaction the applier runs in.
type TxStore interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the applier's transactional surface. Every method runs inside the
// same transaction; nothing is visible until Commit.
type Tx interface {
	// RewriteCompanies updates company identities from the ledger.
	RewriteCompanies(ctx context.Context, rows []model.MigrationMapping) (int64, error)
	// RewritePostings updates posting company references from the ledger.
	RewritePostings(ctx context.Context, rows []model.MigrationMapping) (int64, error)
	// CountOrphans counts postings whose company reference matches no company.
	CountOrphans(ctx context.Context) (int64, error)
	// DropLedger discards the ledger table.
	DropLedger(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ApplyReport summarizes an apply attempt. On failure it still carries the
// counts observed before rollback, for the operator's post-mortem.
type ApplyReport struct {
	LedgerRows         int   `json:"ledgerRows"`
	CompaniesRewritten int64 `json:"companiesRewritten"`
	PostingsRewritten  int64 `json:"postingsRewritten"`
	Orphans            int64 `json:"orphans"`
	Collisions         int   `json:"collisions"`
}

// Apply rewrites every company identity and posting reference from the
// ledger inside a single transaction, verifies zero orphaned references,
// and only then drops the ledger. Preconditions are enforced, not assumed:
// a non-empty ledger and zero collisions. Must not run concurrently with
// ingestion — the caller pauses ingestion first.
//
// An interrupted apply never needs blind resumption: either the transaction
// committed (ledger gone) or nothing happened; re-running re-verifies from
// scratch either way.
func Apply(ctx context.Context, ledger LedgerStore, txs TxStore) (ApplyReport, error) {
	rows, err := ledger.Load(ctx)
	if err != nil {
		return ApplyReport{}, fmt.Errorf("load ledger: %w", err)
	}
	report := ApplyReport{LedgerRows: len(rows)}
	if len(rows) == 0 {
		return report, ErrLedgerEmpty
	}
	if collisions := DetectCollisions(rows); len(collisions) > 0 {
		report.Collisions = len(collisions)
		return report, fmt.Errorf("%w: %d groups, run fix-collisions first", ErrCollisionsRemain, len(collisions))
	}

	tx, err := txs.Begin(ctx)
	if err != nil {
		return report, fmt.Errorf("begin: %w", err)
	}
	// Rollback after Commit is a no-op; this is the only escape hatch on
	// every error path below.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if report.CompaniesRewritten, err = tx.RewriteCompanies(ctx, rows); err != nil {
		return report, fmt.Errorf("rewrite companies: %w", err)
	}
	if report.PostingsRewritten, err = tx.RewritePostings(ctx, rows); err != nil {
		return report, fmt.Errorf("rewrite postings: %w", err)
	}

	if report.Orphans, err = tx.CountOrphans(ctx); err != nil {
		return report, fmt.Errorf("count orphans: %w", err)
	}
	if report.Orphans > 0 {
		// Referential integrity is the invariant this tool exists to
		// protect; the transaction must not commit past this check.
		return report, fmt.Errorf("%w: %d orphans", ErrOrphansDetected, report.Orphans)
	}

	if err := tx.DropLedger(ctx); err != nil {
		return report, fmt.Errorf("drop ledger: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return report, fmt.Errorf("commit: %w", err)
	}

	log.Printf("[migrate] Applied — companies=%d postings=%d orphans=0",
		report.CompaniesRewritten, report.PostingsRewritten)
	return report, nil
}
