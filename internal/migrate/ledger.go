// Package migrate stages and applies company identity re-keys: build a
// ledger of old→new identities offline, fix collisions until none remain,
// then rewrite every reference in one transaction. The three steps are
// separate operations run in order while ingestion is paused.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// Sentinel errors for migration preconditions. Each is fatal to the
// migration tool — the operator fixes the condition and re-runs.
var (
	ErrLedgerEmpty      = errors.New("migration ledger is empty")
	ErrCollisionsRemain = errors.New("migration ledger contains collisions")
	ErrOrphansDetected  = errors.New("postings reference missing companies")
)

// CompanySource lists the live companies the ledger is computed from.
type CompanySource interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
}

// LedgerStore holds the transient old→new mapping rows.
type LedgerStore interface {
	// Replace truncates the ledger and writes the given rows.
	Replace(ctx context.Context, rows []model.MigrationMapping) error
	// Load returns every ledger row.
	Load(ctx context.Context) ([]model.MigrationMapping, error)
	// Update rewrites the NewID of existing rows, keyed by OldID.
	Update(ctx context.Context, rows []model.MigrationMapping) error
}

// BuildReport summarizes a ledger build.
type BuildReport struct {
	Total     int `json:"total"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// BuildLedger recomputes every company's identity under the target resolver
// and stores the old→new mapping. Read-only against live tables; the ledger
// is truncated and repopulated, so the build is safely re-runnable.
func BuildLedger(ctx context.Context, companies CompanySource, ledger LedgerStore, resolver *identity.Resolver) (BuildReport, error) {
	live, err := companies.ListCompanies(ctx)
	if err != nil {
		return BuildReport{}, fmt.Errorf("list companies: %w", err)
	}

	rows := make([]model.MigrationMapping, 0, len(live))
	var report BuildReport
	for _, c := range live {
		newID := resolver.Resolve(c.DisplayName, c.City, c.State)
		rows = append(rows, model.MigrationMapping{
			OldID:          c.ID,
			NewID:          newID,
			NormalizedName: identity.Normalize(c.DisplayName),
		})
		if newID == c.ID {
			report.Unchanged++
		} else {
			report.Changed++
		}
	}
	report.Total = len(rows)

	if err := ledger.Replace(ctx, rows); err != nil {
		return BuildReport{}, fmt.Errorf("replace ledger: %w", err)
	}

	log.Printf("[migrate] Ledger built — total=%d changed=%d unchanged=%d",
		report.Total, report.Changed, report.Unchanged)
	return report, nil
}
