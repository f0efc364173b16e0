package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/feed"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/quota"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/store"
)

const (
	// runLockKey guards against two scheduled runs of the same deployment
	// overlapping. Independent deployments are still safe without it — the
	// upsert engine tolerates concurrent writers — the lock only avoids
	// burning quota twice on the same plan.
	runLockKey = "ingest:run:lock"
	runLockTTL = 30 * time.Minute

	// runDoneChannel receives the JSON run summary at the end of each run.
	runDoneChannel = "EVENT_INGEST_RUN_DONE"
)

// Config describes one ingestion run.
type Config struct {
	Terms   []string
	Country string
	Limits  model.QuotaLimits

	// BudgetFraction is the share of the remaining daily quota one run may
	// spend, split evenly across terms so a high-volume term cannot starve
	// the others.
	BudgetFraction float64
	// MinDelay is the minimum gap between upstream requests.
	MinDelay time.Duration
}

// Orchestrator drives one ingestion run: paged fetch through the rate
// limiter, boundary validation, company resolution, posting upsert, and
// skill tagging. Runs are single-threaded and cooperative; concurrency
// safety across independent runs comes from the store, not from here.
type Orchestrator struct {
	searcher  feed.Searcher
	companies store.Companies
	postings  store.Postings
	tracker   *quota.Tracker
	transform *Transformer
	rdb       *redis.Client // optional: run lock + run-done events
}

// NewOrchestrator wires an Orchestrator. rdb may be nil, which disables the
// run lock and event publishing (useful for one-shot and test runs).
func NewOrchestrator(searcher feed.Searcher, companies store.Companies, postings store.Postings,
	tracker *quota.Tracker, transform *Transformer, rdb *redis.Client) *Orchestrator {
	return &Orchestrator{
		searcher:  searcher,
		companies: companies,
		postings:  postings,
		tracker:   tracker,
		transform: transform,
		rdb:       rdb,
	}
}

// Run executes one ingestion run and returns its summary. Quota exhaustion
// is a clean abort (summary.Aborted with a reason), not an error; an error
// return means the quota store was unreachable and the run refused to
// proceed, or the context ended.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*model.RunSummary, error) {
	sum := &model.RunSummary{
		Country:   cfg.Country,
		Terms:     cfg.Terms,
		TermNotes: make(map[string]string),
		StartedAt: time.Now(),
	}
	defer func() {
		sum.EndedAt = time.Now()
		o.publishSummary(sum)
	}()

	if len(cfg.Terms) == 0 {
		sum.Aborted = true
		sum.Reason = "no search terms configured"
		return sum, nil
	}

	if o.rdb != nil {
		ok, err := o.rdb.SetNX(ctx, runLockKey, "1", runLockTTL).Result()
		if err != nil {
			slog.Warn("run lock unavailable, proceeding without it", "err", err)
		} else if !ok {
			log.Printf("[ingest] Another run holds %s — skipping this cycle", runLockKey)
			sum.Aborted = true
			sum.Reason = "another ingestion run holds the lock"
			return sum, nil
		} else {
			defer o.rdb.Del(context.WithoutCancel(ctx), runLockKey)
		}
	}

	// Consult the shared tracker once, up front. Within the run the local
	// limiter enforces the budget; the tracker is only written to.
	allowed, exceeded, err := o.tracker.CheckLimits(ctx, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		sum.Aborted = true
		sum.Reason = fmt.Sprintf("quota exhausted (%s)", exceeded)
		log.Printf("[ingest] %s — run aborted before any request", sum.Reason)
		return sum, nil
	}

	budget, perTerm := o.sizeBudget(ctx, cfg)
	if budget < 1 {
		sum.Aborted = true
		sum.Reason = "no request budget remaining"
		return sum, nil
	}

	limiter := quota.NewLimiter(budget, cfg.MinDelay)
	log.Printf("[ingest] Run starting — terms=%d country=%s budget=%d perTerm=%d",
		len(cfg.Terms), cfg.Country, budget, perTerm)

	for _, term := range cfg.Terms {
		err := o.runTerm(ctx, term, cfg.Country, perTerm, limiter, sum)
		if errors.Is(err, quota.ErrRunLimitReached) {
			sum.Aborted = true
			sum.Reason = "run request budget exhausted"
			break
		}
		if err != nil {
			return sum, err
		}
	}

	log.Printf("[ingest] Run done — requests=%d fetched=%d inserted=%d updated=%d invalid=%d failed=%d aborted=%v",
		sum.Requests, sum.Fetched, sum.Inserted, sum.Updated, sum.Invalid, sum.Failed, sum.Aborted)
	return sum, nil
}

// sizeBudget converts remaining daily quota into this run's request budget
// and its even per-term split.
func (o *Orchestrator) sizeBudget(ctx context.Context, cfg Config) (budget, perTerm int) {
	usage, err := o.tracker.Usage(ctx)
	if err != nil {
		return 0, 0
	}

	remaining := cfg.Limits.Daily - usage.Daily
	if remaining < 0 {
		remaining = 0
	}

	fraction := cfg.BudgetFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	budget = int(float64(remaining) * fraction)
	if budget > remaining {
		budget = remaining
	}
	if budget < 1 {
		return 0, 0
	}

	perTerm = budget / len(cfg.Terms)
	if perTerm < 1 {
		perTerm = 1
	}
	return budget, perTerm
}

// runTerm pages through one search term until the page budget is spent, a
// short page signals the end, or the upstream fails. An upstream transport
// error stops this term only; other terms still get their slice.
func (o *Orchestrator) runTerm(ctx context.Context, term, country string, pageBudget int, limiter *quota.Limiter, sum *model.RunSummary) error {
	for page, used := 1, 0; used < pageBudget; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		records, err := o.searcher.SearchPage(ctx, term, country, page)
		used++
		sum.Requests++
		// The request was made either way; count it before looking at err.
		if incErr := o.tracker.Increment(ctx, 1); incErr != nil {
			return fmt.Errorf("quota increment after request: %w", incErr)
		}
		if err != nil {
			slog.Warn("upstream error, stopping term", "term", term, "page", page, "err", err)
			sum.TermNotes[term] = fmt.Sprintf("stopped at page %d: %v", page, err)
			return nil
		}

		sum.Pages++
		sum.Fetched += len(records)
		o.processRecords(ctx, records, country, sum)

		if len(records) < feed.PageSize {
			return nil
		}
	}
	return nil
}

// processRecords validates, resolves, transforms and upserts one page of
// records. Per-record failures are counted, never fatal to the run.
func (o *Orchestrator) processRecords(ctx context.Context, records []model.RawJobRecord, country string, sum *model.RunSummary) {
	for _, raw := range records {
		res := feed.ValidateRecord(raw)
		if !res.IsValid {
			sum.Invalid++
			slog.Warn("dropping invalid record", "id", raw.ID, "warnings", res.Warnings)
			continue
		}

		posting, company := o.transform.Transform(raw, country)

		if _, err := store.FindOrCreateCompany(ctx, o.companies, company); err != nil {
			sum.Failed++
			slog.Warn("company resolution failed", "record", raw.ID, "err", err)
			continue
		}

		inserted, err := o.postings.UpsertPosting(ctx, posting)
		if err != nil {
			sum.Failed++
			slog.Warn("posting upsert failed", "record", raw.ID, "err", err)
			continue
		}
		if inserted {
			sum.Inserted++
		} else {
			sum.Updated++
		}

		if skills := TagSkills(posting.Title, posting.Description); len(skills) > 0 {
			if err := o.postings.LinkSkills(ctx, posting.ID, skills); err != nil {
				slog.Warn("skill tagging failed", "posting", posting.ID, "err", err)
			}
		}
	}
}

// publishSummary emits the run summary for anything listening (non-fatal).
func (o *Orchestrator) publishSummary(sum *model.RunSummary) {
	if o.rdb == nil {
		return
	}
	payload, _ := json.Marshal(sum)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.rdb.Publish(ctx, runDoneChannel, payload).Err(); err != nil {
		slog.Warn("publish run summary failed", "err", err)
	}
}
