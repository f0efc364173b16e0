// ingestd — job posting ingestion daemon.
//
// Pulls paginated search results from the Adzuna API under multi-period
// quota ceilings, resolves company identities, upserts postings, and tags
// skills. Runs on a cron interval by default; -once executes a single run
// and prints its JSON summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/config"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/db"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/feed"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/ingest"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/quota"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/scheduler"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/store"
)

func main() {
	planPath := flag.String("config", "plan.yaml", "path to the search plan file")
	once := flag.Bool("once", false, "run a single ingestion and exit")
	flag.Parse()

	_ = godotenv.Load() // .env is optional; real env always wins

	cfg, err := config.Load(*planPath)
	if err != nil {
		log.Fatalf("[ingestd] Config error: %v", err)
	}

	version, err := identity.ParseVersion(cfg.Plan.ResolverVersion)
	if err != nil {
		log.Fatalf("[ingestd] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[ingestd] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[ingestd] PostgreSQL: %v", err)
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("[ingestd] Schema: %v", err)
	}
	log.Println("[ingestd] PostgreSQL connected ✓")

	// ── Redis (optional) ─────────────────────────────────────────────────────
	orch := buildOrchestrator(ctx, cfg, version, pool)

	runCfg := ingest.Config{
		Terms:          cfg.Plan.Terms,
		Country:        cfg.Plan.Country,
		Limits:         cfg.Plan.Limits(),
		BudgetFraction: cfg.Plan.BudgetFraction,
		MinDelay:       cfg.Plan.MinDelay,
	}

	if *once {
		sum, err := orch.Run(ctx, runCfg)
		if err != nil {
			log.Fatalf("[ingestd] Run error: %v", err)
		}
		out, _ := json.Marshal(sum)
		os.Stdout.Write(append(out, '\n'))
		if sum.Aborted {
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(orch, runCfg, cfg.ScrapeIntervalHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[ingestd] Scheduler: %v", err)
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[ingestd] Shutting down…")
	cancel()
	sched.Stop()
	log.Println("[ingestd] Stopped.")
}

// buildOrchestrator assembles the run pipeline from config. Redis is wired
// only when REDIS_URL is set; without it the run lock and events are off.
func buildOrchestrator(ctx context.Context, cfg *config.Config, version identity.Version, pool *pgxpool.Pool) *ingest.Orchestrator {
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[ingestd] Redis: %v", err)
		}
		log.Println("[ingestd] Redis connected ✓")
	} else {
		log.Println("[ingestd] REDIS_URL not set — run lock and events disabled")
	}

	pg := store.NewPG(pool)
	tracker := quota.NewTracker(quota.NewPGStore(pool))
	transform := ingest.NewTransformer(identity.NewResolver(version), feed.Source)
	client := feed.NewAdzunaClient(cfg.AdzunaAppID, cfg.AdzunaAppKey)

	return ingest.NewOrchestrator(client, pg, pg, tracker, transform, rdb)
}
