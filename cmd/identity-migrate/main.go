// identity-migrate — offline company identity re-key tool.
//
// Three-phase pipeline, each phase a subcommand:
//
//	build-ledger    recompute every company's identity under the target
//	                resolver version and stage old→new pairs in the ledger
//	fix-collisions  rewrite ledger rows whose new identities collide
//	apply           rewrite companies and postings from the ledger in one
//	                transaction, verify zero orphans, drop the ledger
//
// Each subcommand prints a JSON report to stdout and exits non-zero when a
// precondition fails, so the phases compose in shell pipelines. Pause
// ingestion before running apply.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/config"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/db"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/migrate"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	dbURL, err := config.LoadDatabaseURL()
	if err != nil {
		log.Fatalf("[identity-migrate] Config error: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("[identity-migrate] PostgreSQL: %v", err)
	}
	defer pool.Close()

	pg := migrate.NewPG(pool)

	switch cmd := os.Args[1]; cmd {
	case "build-ledger":
		fs := flag.NewFlagSet("build-ledger", flag.ExitOnError)
		toVersion := fs.String("to-version", "v2", "resolver version to migrate to")
		fs.Parse(os.Args[2:])

		version, err := identity.ParseVersion(*toVersion)
		if err != nil {
			log.Fatalf("[identity-migrate] %v", err)
		}

		report, err := migrate.BuildLedger(ctx, pg, pg, identity.NewResolver(version))
		emit(report, err)

	case "fix-collisions":
		report, err := migrate.FixLedgerCollisions(ctx, pg)
		emit(report, err)

	case "apply":
		report, err := migrate.Apply(ctx, pg, pg)
		emit(report, err)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

// emit prints the report as one JSON line and exits non-zero on error. The
// report is printed either way — failed phases still carry useful counts.
func emit(report any, err error) {
	out, _ := json.Marshal(report)
	os.Stdout.Write(append(out, '\n'))
	if err != nil {
		log.Fatalf("[identity-migrate] %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: identity-migrate <command> [flags]

commands:
  build-ledger [-to-version v2]  stage old→new identity pairs
  fix-collisions                 rewrite colliding new identities
  apply                          rewrite companies and postings, drop ledger`)
}
