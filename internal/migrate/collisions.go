package migrate

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// CollisionGroup is a set of ledger rows whose distinct old identities map
// to the same new identity.
type CollisionGroup struct {
	NewID string
	Rows  []model.MigrationMapping
}

// FixReport summarizes a collision-fix pass.
type FixReport struct {
	Groups    int `json:"groups"`
	Rewritten int `json:"rewritten"`
	Remaining int `json:"remaining"`
}

// DetectCollisions groups ledger rows by new identity and returns the
// groups with more than one old identity, ordered by new identity for
// stable reporting.
func DetectCollisions(rows []model.MigrationMapping) []CollisionGroup {
	byNew := make(map[string][]model.MigrationMapping)
	for _, r := range rows {
		byNew[r.NewID] = append(byNew[r.NewID], r)
	}

	var groups []CollisionGroup
	for newID, members := range byNew {
		if len(members) > 1 {
			groups = append(groups, CollisionGroup{NewID: newID, Rows: members})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].NewID < groups[j].NewID })
	return groups
}

// FixCollisions rewrites every row inside a collision group with a unique
// identity hashed from oldID+normalizedName — distinct because the old
// identities were already unique. The result is checked against every
// identity in use; in the vanishingly unlikely case of a further collision
// the input is perturbed and rehashed. Mappings outside collision groups
// are returned untouched.
func FixCollisions(rows []model.MigrationMapping) ([]model.MigrationMapping, FixReport) {
	groups := DetectCollisions(rows)
	report := FixReport{Groups: len(groups)}
	if len(groups) == 0 {
		return rows, report
	}

	inUse := make(map[string]bool, len(rows))
	for _, r := range rows {
		inUse[r.NewID] = true
	}

	colliding := make(map[string]bool)
	for _, g := range groups {
		for _, r := range g.Rows {
			colliding[r.OldID] = true
		}
	}

	fixed := make([]model.MigrationMapping, len(rows))
	copy(fixed, rows)
	for i, r := range fixed {
		if !colliding[r.OldID] {
			continue
		}
		candidate := identity.Hash(r.OldID + r.NormalizedName)
		for attempt := 1; inUse[candidate]; attempt++ {
			candidate = identity.Hash(fmt.Sprintf("%s%s#%d", r.OldID, r.NormalizedName, attempt))
		}
		inUse[candidate] = true
		fixed[i].NewID = candidate
		report.Rewritten++
	}

	report.Remaining = len(DetectCollisions(fixed))
	log.Printf("[migrate] Collisions fixed — groups=%d rewritten=%d remaining=%d",
		report.Groups, report.Rewritten, report.Remaining)
	return fixed, report
}

// FixLedgerCollisions loads the ledger, fixes collisions and writes the
// corrected rows back. Must report zero remaining before Apply may run.
func FixLedgerCollisions(ctx context.Context, ledger LedgerStore) (FixReport, error) {
	rows, err := ledger.Load(ctx)
	if err != nil {
		return FixReport{}, fmt.Errorf("load ledger: %w", err)
	}
	if len(rows) == 0 {
		return FixReport{}, ErrLedgerEmpty
	}

	fixed, report := FixCollisions(rows)
	if report.Rewritten == 0 {
		return report, nil
	}

	changed := make([]model.MigrationMapping, 0, report.Rewritten)
	for i := range fixed {
		if fixed[i].NewID != rows[i].NewID {
			changed = append(changed, fixed[i])
		}
	}
	if err := ledger.Update(ctx, changed); err != nil {
		return FixReport{}, fmt.Errorf("update ledger: %w", err)
	}
	return report, nil
}
