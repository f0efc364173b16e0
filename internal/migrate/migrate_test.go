package migrate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/migrate"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// memDB is an in-memory migration store: companies, postings and the
// ledger, with transactional apply semantics (mutations stage in a copy and
// become visible on Commit only).
type memDB struct {
	companies map[string]model.Company
	postings  map[string]model.Posting
	ledger    []model.MigrationMapping
}

func newMemDB() *memDB {
	return &memDB{
		companies: make(map[string]model.Company),
		postings:  make(map[string]model.Posting),
	}
}

func (db *memDB) addCompany(id, name, city, state string) {
	db.companies[id] = model.Company{ID: id, DisplayName: name, City: city, State: state}
}

func (db *memDB) addPosting(id, companyID string) {
	db.postings[id] = model.Posting{ID: id, ExternalID: id, Source: "adzuna", Country: "us", CompanyID: companyID}
}

func (db *memDB) ListCompanies(context.Context) ([]model.Company, error) {
	out := make([]model.Company, 0, len(db.companies))
	for _, c := range db.companies {
		out = append(out, c)
	}
	return out, nil
}

func (db *memDB) Replace(_ context.Context, rows []model.MigrationMapping) error {
	db.ledger = append([]model.MigrationMapping(nil), rows...)
	return nil
}

func (db *memDB) Load(context.Context) ([]model.MigrationMapping, error) {
	return append([]model.MigrationMapping(nil), db.ledger...), nil
}

func (db *memDB) Update(_ context.Context, rows []model.MigrationMapping) error {
	for _, r := range rows {
		for i := range db.ledger {
			if db.ledger[i].OldID == r.OldID {
				db.ledger[i].NewID = r.NewID
			}
		}
	}
	return nil
}

func (db *memDB) Begin(context.Context) (migrate.Tx, error) {
	tx := &memTx{
		db:        db,
		companies: make(map[string]model.Company, len(db.companies)),
		postings:  make(map[string]model.Posting, len(db.postings)),
	}
	for k, v := range db.companies {
		tx.companies[k] = v
	}
	for k, v := range db.postings {
		tx.postings[k] = v
	}
	return tx, nil
}

type memTx struct {
	db         *memDB
	companies  map[string]model.Company
	postings   map[string]model.Posting
	dropLedger bool
	done       bool
}

func (t *memTx) RewriteCompanies(_ context.Context, rows []model.MigrationMapping) (int64, error) {
	var n int64
	for _, m := range rows {
		if m.NewID == m.OldID {
			continue
		}
		if c, ok := t.companies[m.OldID]; ok {
			delete(t.companies, m.OldID)
			c.ID = m.NewID
			t.companies[m.NewID] = c
			n++
		}
	}
	return n, nil
}

func (t *memTx) RewritePostings(_ context.Context, rows []model.MigrationMapping) (int64, error) {
	byOld := make(map[string]string, len(rows))
	for _, m := range rows {
		if m.NewID != m.OldID {
			byOld[m.OldID] = m.NewID
		}
	}
	var n int64
	for id, p := range t.postings {
		if newID, ok := byOld[p.CompanyID]; ok {
			p.CompanyID = newID
			t.postings[id] = p
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountOrphans(context.Context) (int64, error) {
	var n int64
	for _, p := range t.postings {
		if _, ok := t.companies[p.CompanyID]; !ok {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DropLedger(context.Context) error {
	t.dropLedger = true
	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.db.companies = t.companies
	t.db.postings = t.postings
	if t.dropLedger {
		t.db.ledger = nil
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	// Staged state is simply discarded.
	t.done = true
	return nil
}

// ── BuildLedger ────────────────────────────────────────────────────────────

func TestBuildLedger_ReportsChangedAndUnchanged(t *testing.T) {
	v1 := identity.NewResolver(identity.V1)
	v2 := identity.NewResolver(identity.V2)

	db := newMemDB()
	// Seeded under v2 (name+location); migrating to v1 re-keys them.
	db.addCompany(v2.Resolve("Acme Corp", "Austin", "TX"), "Acme Corp", "Austin", "TX")
	db.addCompany(v2.Resolve("Beta LLC", "Boston", "MA"), "Beta LLC", "Boston", "MA")
	// Already keyed under v1 — unchanged.
	db.addCompany(v1.Resolve("Gamma Inc", "", ""), "Gamma Inc", "", "")

	report, err := migrate.BuildLedger(context.Background(), db, db, v1)
	if err != nil {
		t.Fatalf("BuildLedger: %v", err)
	}
	if report.Total != 3 || report.Changed != 2 || report.Unchanged != 1 {
		t.Errorf("report = %+v, want total 3, changed 2, unchanged 1", report)
	}
	if len(db.ledger) != 3 {
		t.Errorf("ledger rows = %d, want 3", len(db.ledger))
	}
}

func TestBuildLedger_IsRerunnable(t *testing.T) {
	v1 := identity.NewResolver(identity.V1)
	db := newMemDB()
	db.addCompany("a1", "Acme Corp", "Austin", "TX")

	ctx := context.Background()
	if _, err := migrate.BuildLedger(ctx, db, db, v1); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := migrate.BuildLedger(ctx, db, db, v1); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if len(db.ledger) != 1 {
		t.Errorf("ledger rows after rebuild = %d, want 1 (truncate+repopulate)", len(db.ledger))
	}
}

// ── DetectCollisions / FixCollisions ───────────────────────────────────────

func TestDetectCollisions(t *testing.T) {
	rows := []model.MigrationMapping{
		{OldID: "a1", NewID: "n1", NormalizedName: "acme"},
		{OldID: "a2", NewID: "n1", NormalizedName: "acme"},
		{OldID: "b1", NewID: "n2", NormalizedName: "beta"},
	}
	groups := migrate.DetectCollisions(rows)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].NewID != "n1" || len(groups[0].Rows) != 2 {
		t.Errorf("group = %+v, want n1 with 2 rows", groups[0])
	}
}

func TestFixCollisions_SplitsGroups(t *testing.T) {
	// Two companies whose names both normalize to "acme" collide under a
	// name-only scheme; post-fix their identities must differ.
	rows := []model.MigrationMapping{
		{OldID: "a1", NewID: identity.Hash("acme"), NormalizedName: "acme"},
		{OldID: "a2", NewID: identity.Hash("acme"), NormalizedName: "acme"},
		{OldID: "b1", NewID: identity.Hash("beta"), NormalizedName: "beta"},
	}

	fixed, report := migrate.FixCollisions(rows)
	if report.Groups != 1 || report.Rewritten != 2 || report.Remaining != 0 {
		t.Fatalf("report = %+v, want 1 group, 2 rewritten, 0 remaining", report)
	}
	if fixed[0].NewID == fixed[1].NewID {
		t.Errorf("collision not split: both map to %q", fixed[0].NewID)
	}
	if len(migrate.DetectCollisions(fixed)) != 0 {
		t.Error("collisions remain after fix")
	}
	if fixed[2].NewID != identity.Hash("beta") {
		t.Errorf("non-colliding row rewritten: %+v", fixed[2])
	}
	for _, f := range fixed[:2] {
		if len(f.NewID) != identity.IDLength {
			t.Errorf("fixed identity %q has wrong length", f.NewID)
		}
	}
}

func TestFixCollisions_NoCollisionsIsNoop(t *testing.T) {
	rows := []model.MigrationMapping{
		{OldID: "a1", NewID: "n1", NormalizedName: "acme"},
		{OldID: "b1", NewID: "n2", NormalizedName: "beta"},
	}
	fixed, report := migrate.FixCollisions(rows)
	if report.Groups != 0 || report.Rewritten != 0 {
		t.Errorf("report = %+v, want all zero", report)
	}
	for i := range rows {
		if fixed[i] != rows[i] {
			t.Errorf("row %d changed: %+v vs %+v", i, fixed[i], rows[i])
		}
	}
}

func TestFixCollisions_DeterministicAcrossRuns(t *testing.T) {
	rows := []model.MigrationMapping{
		{OldID: "a1", NewID: "n1", NormalizedName: "acme"},
		{OldID: "a2", NewID: "n1", NormalizedName: "acme"},
	}
	a, _ := migrate.FixCollisions(rows)
	b, _ := migrate.FixCollisions(rows)
	for i := range a {
		if a[i].NewID != b[i].NewID {
			t.Errorf("fix not deterministic at row %d: %q vs %q", i, a[i].NewID, b[i].NewID)
		}
	}
}

func TestFixLedgerCollisions_PersistsFixes(t *testing.T) {
	db := newMemDB()
	db.ledger = []model.MigrationMapping{
		{OldID: "a1", NewID: "n1", NormalizedName: "acme"},
		{OldID: "a2", NewID: "n1", NormalizedName: "acme"},
	}

	report, err := migrate.FixLedgerCollisions(context.Background(), db)
	if err != nil {
		t.Fatalf("FixLedgerCollisions: %v", err)
	}
	if report.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", report.Remaining)
	}
	if db.ledger[0].NewID == db.ledger[1].NewID {
		t.Error("fix not persisted to the ledger")
	}
}

func TestFixLedgerCollisions_EmptyLedger(t *testing.T) {
	_, err := migrate.FixLedgerCollisions(context.Background(), newMemDB())
	if !errors.Is(err, migrate.ErrLedgerEmpty) {
		t.Errorf("err = %v, want ErrLedgerEmpty", err)
	}
}

// ── Apply ──────────────────────────────────────────────────────────────────

func TestApply_RefusesEmptyLedger(t *testing.T) {
	db := newMemDB()
	db.addCompany("a1", "Acme", "", "")

	_, err := migrate.Apply(context.Background(), db, db)
	if !errors.Is(err, migrate.ErrLedgerEmpty) {
		t.Errorf("err = %v, want ErrLedgerEmpty", err)
	}
}

func TestApply_RefusesCollisions(t *testing.T) {
	db := newMemDB()
	db.addCompany("a1", "Acme", "", "")
	db.addCompany("a2", "Acme Inc", "", "")
	db.addPosting("p1", "a1")
	db.ledger = []model.MigrationMapping{
		{OldID: "a1", NewID: "n1", NormalizedName: "acme"},
		{OldID: "a2", NewID: "n1", NormalizedName: "acme"},
	}

	report, err := migrate.Apply(context.Background(), db, db)
	if !errors.Is(err, migrate.ErrCollisionsRemain) {
		t.Fatalf("err = %v, want ErrCollisionsRemain", err)
	}
	if report.Collisions != 1 {
		t.Errorf("report.Collisions = %d, want 1", report.Collisions)
	}
	// Nothing may have been rewritten.
	if _, ok := db.companies["a1"]; !ok {
		t.Error("company rewritten despite collision refusal")
	}
	if db.postings["p1"].CompanyID != "a1" {
		t.Error("posting rewritten despite collision refusal")
	}
	if len(db.ledger) != 2 {
		t.Error("ledger dropped despite collision refusal")
	}
}

func TestApply_RewritesEverythingAndDropsLedger(t *testing.T) {
	v1 := identity.NewResolver(identity.V1)
	db := newMemDB()
	db.addCompany("oldacme0000000001", "Acme Corp", "Austin", "TX")
	db.addCompany("oldbeta0000000001", "Beta LLC", "Boston", "MA")
	db.addPosting("p1", "oldacme0000000001")
	db.addPosting("p2", "oldacme0000000001")
	db.addPosting("p3", "oldbeta0000000001")

	ctx := context.Background()
	if _, err := migrate.BuildLedger(ctx, db, db, v1); err != nil {
		t.Fatalf("BuildLedger: %v", err)
	}

	report, err := migrate.Apply(ctx, db, db)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.CompaniesRewritten != 2 || report.PostingsRewritten != 3 || report.Orphans != 0 {
		t.Errorf("report = %+v, want 2 companies, 3 postings, 0 orphans", report)
	}

	acmeID := v1.Resolve("Acme Corp", "Austin", "TX")
	if _, ok := db.companies[acmeID]; !ok {
		t.Errorf("company not re-keyed to %q", acmeID)
	}
	if db.postings["p1"].CompanyID != acmeID || db.postings["p2"].CompanyID != acmeID {
		t.Error("postings still reference the old identity")
	}
	// Every posting must reference an existing company.
	for id, p := range db.postings {
		if _, ok := db.companies[p.CompanyID]; !ok {
			t.Errorf("posting %s orphaned: company %q missing", id, p.CompanyID)
		}
	}
	if len(db.ledger) != 0 {
		t.Error("ledger not dropped after successful apply")
	}
}

func TestApply_OrphanCheckRollsBack(t *testing.T) {
	db := newMemDB()
	db.addCompany("a1", "Acme Corp", "Austin", "TX")
	db.addPosting("p1", "a1")
	// p2 references a company that never existed; the rewrite cannot heal
	// it and the orphan check must veto the commit.
	db.addPosting("p2", "ghost000000000001")
	db.ledger = []model.MigrationMapping{
		{OldID: "a1", NewID: "newacme000000001", NormalizedName: "acme"},
	}

	report, err := migrate.Apply(context.Background(), db, db)
	if !errors.Is(err, migrate.ErrOrphansDetected) {
		t.Fatalf("err = %v, want ErrOrphansDetected", err)
	}
	if report.Orphans != 1 {
		t.Errorf("report.Orphans = %d, want 1", report.Orphans)
	}
	// The transaction rolled back: live data untouched, ledger kept.
	if _, ok := db.companies["a1"]; !ok {
		t.Error("company rewrite committed despite orphan failure")
	}
	if db.postings["p1"].CompanyID != "a1" {
		t.Error("posting rewrite committed despite orphan failure")
	}
	if len(db.ledger) != 1 {
		t.Error("ledger dropped despite orphan failure")
	}
}
