package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/feed"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/ingest"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/quota"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/store/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memQuota is an in-memory quota.Store for orchestrator tests.
type memQuota struct {
	mu     sync.Mutex
	counts map[string]int
	fail   error
}

func newMemQuota() *memQuota { return &memQuota{counts: make(map[string]int)} }

func (m *memQuota) Increment(_ context.Context, keys quota.PeriodKeys, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.counts["daily|"+keys.Daily] += n
	m.counts["weekly|"+keys.Weekly] += n
	m.counts["monthly|"+keys.Monthly] += n
	return nil
}

func (m *memQuota) Usage(_ context.Context, keys quota.PeriodKeys) (model.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.QuotaUsage{}, m.fail
	}
	return model.QuotaUsage{
		Daily:   m.counts["daily|"+keys.Daily],
		Weekly:  m.counts["weekly|"+keys.Weekly],
		Monthly: m.counts["monthly|"+keys.Monthly],
	}, nil
}

// fakeSearcher serves canned pages per term and can fail a term entirely.
type fakeSearcher struct {
	pages    map[string][][]model.RawJobRecord
	failTerm string
	calls    int
}

func (f *fakeSearcher) SearchPage(_ context.Context, term, _ string, page int) ([]model.RawJobRecord, error) {
	f.calls++
	if term == f.failTerm {
		return nil, errors.New("upstream says 429")
	}
	termPages := f.pages[term]
	if page < 1 || page > len(termPages) {
		return nil, nil
	}
	return termPages[page-1], nil
}

func record(id, title, company string) model.RawJobRecord {
	return model.RawJobRecord{
		ID:          id,
		Title:       title,
		CompanyName: company,
		Location:    "Austin, TX",
		RedirectURL: "https://example.com/jobs/" + id,
		Created:     "2026-02-10T08:30:00Z",
	}
}

// fullPage builds a page of exactly feed.PageSize valid records so the
// orchestrator asks for the next one.
func fullPage(prefix string) []model.RawJobRecord {
	page := make([]model.RawJobRecord, feed.PageSize)
	for i := range page {
		id := fmt.Sprintf("%s-%03d", prefix, i)
		page[i] = record(id, "Backend Engineer", "Acme Corp")
	}
	return page
}

func newOrchestrator(searcher feed.Searcher, s *mock.Store, q quota.Store) *ingest.Orchestrator {
	tr := quota.NewTracker(q)
	transform := ingest.NewTransformer(identity.NewResolver(identity.V1), "adzuna")
	return ingest.NewOrchestrator(searcher, s, s, tr, transform, nil)
}

func runConfig(terms ...string) ingest.Config {
	return ingest.Config{
		Terms:          terms,
		Country:        "us",
		Limits:         model.QuotaLimits{Daily: 100},
		BudgetFraction: 0.5,
		MinDelay:       0,
	}
}

// ── Run — happy path & idempotence ─────────────────────────────────────────

func TestRun_IngestsAndDeduplicates(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{
			record("j1", "Backend Engineer", "Acme Corp"),
			record("j2", "Data Analyst", "Beta LLC"),
		}},
	}}
	s := mock.NewStore()

	sum, err := newOrchestrator(searcher, s, newMemQuota()).Run(context.Background(), runConfig("golang"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Aborted {
		t.Fatalf("run aborted: %s", sum.Reason)
	}
	if sum.Inserted != 2 || sum.Updated != 0 || sum.Fetched != 2 {
		t.Errorf("summary = %+v, want 2 inserted", sum)
	}
	if s.PostingCount() != 2 || s.CompanyCount() != 2 {
		t.Errorf("store has %d postings / %d companies, want 2/2",
			s.PostingCount(), s.CompanyCount())
	}
}

// Running the same fetch twice must refresh rows, not duplicate them.
func TestRun_SecondRunIsIdempotent(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{record("j1", "Backend Engineer", "Acme Corp")}},
	}}
	s := mock.NewStore()
	q := newMemQuota()

	ctx := context.Background()
	if _, err := newOrchestrator(searcher, s, q).Run(ctx, runConfig("golang")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := newOrchestrator(searcher, s, q).Run(ctx, runConfig("golang"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if s.PostingCount() != 1 {
		t.Errorf("posting count after two runs = %d, want 1", s.PostingCount())
	}
	if sum.Inserted != 0 || sum.Updated != 1 {
		t.Errorf("second run summary = inserted %d / updated %d, want 0/1",
			sum.Inserted, sum.Updated)
	}
}

func TestRun_PaginatesOnFullPages(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {
			fullPage("a"),
			{record("last", "Backend Engineer", "Acme Corp")},
		},
	}}
	s := mock.NewStore()

	sum, err := newOrchestrator(searcher, s, newMemQuota()).Run(context.Background(), runConfig("golang"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Pages != 2 {
		t.Errorf("pages = %d, want 2 (full page triggers the next)", sum.Pages)
	}
	if s.PostingCount() != feed.PageSize+1 {
		t.Errorf("posting count = %d, want %d", s.PostingCount(), feed.PageSize+1)
	}
}

// ── Run — validation & per-record failures ─────────────────────────────────

func TestRun_DropsInvalidRecords(t *testing.T) {
	bad := record("j2", "", "Beta LLC") // missing title
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{record("j1", "Backend Engineer", "Acme Corp"), bad}},
	}}
	s := mock.NewStore()

	sum, err := newOrchestrator(searcher, s, newMemQuota()).Run(context.Background(), runConfig("golang"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Invalid != 1 || sum.Inserted != 1 {
		t.Errorf("summary = invalid %d / inserted %d, want 1/1", sum.Invalid, sum.Inserted)
	}
	if s.PostingCount() != 1 {
		t.Errorf("posting count = %d, want 1 (invalid record never inserted)", s.PostingCount())
	}
}

func TestRun_StoreErrorCountsAsFailedAndContinues(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{
			record("j1", "Backend Engineer", "Acme Corp"),
			record("j2", "Data Analyst", "Beta LLC"),
		}},
	}}
	s := mock.NewStore()
	s.FailUpsertPosting = errors.New("deadlock detected")

	sum, err := newOrchestrator(searcher, s, newMemQuota()).Run(context.Background(), runConfig("golang"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 2 {
		t.Errorf("failed = %d, want 2", sum.Failed)
	}
	if sum.Aborted {
		t.Error("per-record store errors must not abort the run")
	}
}

// ── Run — quota & budget ───────────────────────────────────────────────────

func TestRun_AbortsCleanlyWhenQuotaExhausted(t *testing.T) {
	q := newMemQuota()
	tr := quota.NewTracker(q)
	if err := tr.Increment(context.Background(), 100); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	searcher := &fakeSearcher{}
	sum, err := newOrchestrator(searcher, mock.NewStore(), q).Run(context.Background(), runConfig("golang"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Aborted || sum.Reason != "quota exhausted (daily)" {
		t.Errorf("summary = aborted %v reason %q, want clean daily-quota abort",
			sum.Aborted, sum.Reason)
	}
	if searcher.calls != 0 {
		t.Errorf("upstream called %d times after quota exhaustion, want 0", searcher.calls)
	}
}

func TestRun_BudgetExhaustionAbortsRun(t *testing.T) {
	// Daily limit 2, fraction 0.5 → run budget 1: the first term spends it
	// and the second term's Wait trips the limiter.
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{record("j1", "Backend Engineer", "Acme Corp")}},
		"rust":   {{record("j2", "Systems Engineer", "Beta LLC")}},
	}}
	cfg := runConfig("golang", "rust")
	cfg.Limits = model.QuotaLimits{Daily: 2}

	sum, err := newOrchestrator(searcher, mock.NewStore(), newMemQuota()).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Aborted || sum.Reason != "run request budget exhausted" {
		t.Errorf("summary = aborted %v reason %q, want budget-exhausted abort",
			sum.Aborted, sum.Reason)
	}
	if sum.Requests != 1 {
		t.Errorf("requests = %d, want 1", sum.Requests)
	}
}

func TestRun_RecordsUsageInTracker(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string][][]model.RawJobRecord{
		"golang": {{record("j1", "Backend Engineer", "Acme Corp")}},
	}}
	q := newMemQuota()

	if _, err := newOrchestrator(searcher, mock.NewStore(), q).Run(context.Background(), runConfig("golang")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	u, err := quota.NewTracker(q).Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Daily != 1 {
		t.Errorf("tracked daily usage = %d, want 1", u.Daily)
	}
}

func TestRun_FailsClosedWhenQuotaStoreDown(t *testing.T) {
	q := newMemQuota()
	q.fail = errors.New("store unreachable")

	searcher := &fakeSearcher{}
	_, err := newOrchestrator(searcher, mock.NewStore(), q).Run(context.Background(), runConfig("golang"))
	if err == nil {
		t.Fatal("expected error when the quota store is unreachable")
	}
	if searcher.calls != 0 {
		t.Errorf("upstream called %d times without quota enforcement, want 0", searcher.calls)
	}
}

// ── Run — upstream transport errors ────────────────────────────────────────

func TestRun_TransportErrorStopsOnlyThatTerm(t *testing.T) {
	searcher := &fakeSearcher{
		pages: map[string][][]model.RawJobRecord{
			"rust": {{record("j2", "Systems Engineer", "Beta LLC")}},
		},
		failTerm: "golang",
	}
	s := mock.NewStore()

	sum, err := newOrchestrator(searcher, s, newMemQuota()).Run(context.Background(), runConfig("golang", "rust"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Aborted {
		t.Errorf("run aborted (%s); a failing term must not stop the others", sum.Reason)
	}
	if _, ok := sum.TermNotes["golang"]; !ok {
		t.Error("failing term should leave a note in the summary")
	}
	if s.PostingCount() != 1 {
		t.Errorf("posting count = %d, want 1 from the healthy term", s.PostingCount())
	}
}

func TestRun_NoTermsAborts(t *testing.T) {
	sum, err := newOrchestrator(&fakeSearcher{}, mock.NewStore(), newMemQuota()).
		Run(context.Background(), runConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Aborted {
		t.Error("run with no terms should abort with a reason")
	}
}
