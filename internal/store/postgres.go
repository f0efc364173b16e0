package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// PG implements Companies and Postings against PostgreSQL.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG returns a store backed by the given pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// ─── Companies ───────────────────────────────────────────────────────────────

// SelectCompany returns the company with the given identity, or ErrNotFound.
func (s *PG) SelectCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, city, state, country, latitude, longitude, description
		 FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.DisplayName, &c.City, &c.State, &c.Country,
		&c.Latitude, &c.Longitude, &c.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selectCompany: %w", err)
	}
	return &c, nil
}

// InsertCompany inserts a new company row. A unique-constraint violation on
// the identity maps to ErrDuplicateID so callers can adopt the winner's row.
func (s *PG) InsertCompany(ctx context.Context, c model.Company) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, display_name, city, state, country, latitude, longitude, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.DisplayName, c.City, c.State, c.Country,
		c.Latitude, c.Longitude, c.Description,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insertCompany: %w", err)
	}
	return nil
}

// BackfillCompany fills NULL geocode/description fields only; existing
// non-null values always win.
func (s *PG) BackfillCompany(ctx context.Context, c model.Company) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE companies
		 SET latitude    = COALESCE(latitude, $2),
		     longitude   = COALESCE(longitude, $3),
		     description = COALESCE(description, $4)
		 WHERE id = $1`,
		c.ID, c.Latitude, c.Longitude, c.Description,
	)
	if err != nil {
		return fmt.Errorf("backfillCompany: %w", err)
	}
	return nil
}

// ─── Postings ────────────────────────────────────────────────────────────────

// UpsertPosting atomically inserts or refreshes the posting keyed on
// (external_id, source, country). The mutable fields — title, salary,
// location, work type, remote flag — are updated in place on re-observation.
func (s *PG) UpsertPosting(ctx context.Context, p model.Posting) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO postings (
		   id, external_id, source, country, title, description, company_id,
		   location, city, state, salary_min, salary_max, salary_median,
		   salary_raw, remote, contract_type, source_url, category,
		   listed_at, imported_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW())
		 ON CONFLICT (external_id, source, country) DO UPDATE SET
		   title         = EXCLUDED.title,
		   description   = EXCLUDED.description,
		   location      = EXCLUDED.location,
		   city          = EXCLUDED.city,
		   state         = EXCLUDED.state,
		   salary_min    = EXCLUDED.salary_min,
		   salary_max    = EXCLUDED.salary_max,
		   salary_median = EXCLUDED.salary_median,
		   salary_raw    = EXCLUDED.salary_raw,
		   remote        = EXCLUDED.remote,
		   contract_type = EXCLUDED.contract_type,
		   imported_at   = NOW()
		 RETURNING (xmax = 0)`, // xmax = 0 only on a fresh insert
		p.ID, p.ExternalID, p.Source, p.Country, p.Title, p.Description,
		p.CompanyID, p.Location, p.City, p.State, p.SalaryMin, p.SalaryMax,
		p.SalaryMedian, p.SalaryRaw, p.Remote, p.ContractType, p.SourceURL,
		p.Category, p.ListedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsertPosting %s/%s/%s: %w", p.ExternalID, p.Source, p.Country, err)
	}
	return inserted, nil
}

// LinkSkills inserts (posting, skill) pairs, skipping duplicates.
func (s *PG) LinkSkills(ctx context.Context, postingID string, skills []string) error {
	for _, skill := range skills {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO posting_skills (posting_id, skill)
			 VALUES ($1, $2)
			 ON CONFLICT (posting_id, skill) DO NOTHING`,
			postingID, skill,
		)
		if err != nil {
			return fmt.Errorf("linkSkill %s/%s: %w", postingID, skill, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
