// Package store is the Upsert Engine: idempotent writes of companies and
// postings against the relational store. The interfaces here are the
// pipeline's only view of storage, so ingestion and migration logic stay
// testable against in-memory fakes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("row not found")

// ErrDuplicateID is returned by InsertCompany when another writer already
// inserted the same identity (unique-constraint violation).
var ErrDuplicateID = errors.New("duplicate company identity")

// Companies is the minimal table surface the find-or-create operation needs.
type Companies interface {
	// SelectCompany returns the company with the given identity, or ErrNotFound.
	SelectCompany(ctx context.Context, id string) (*model.Company, error)
	// InsertCompany inserts a new row, returning ErrDuplicateID if the
	// identity already exists.
	InsertCompany(ctx context.Context, c model.Company) error
	// BackfillCompany fills geocode and description fields that are still
	// NULL. It never overwrites existing non-null values.
	BackfillCompany(ctx context.Context, c model.Company) error
}

// Postings writes job postings and their skill links.
type Postings interface {
	// UpsertPosting inserts the posting or updates the mutable fields of
	// the row with the same (external_id, source, country) triple.
	// Reports whether a new row was created.
	UpsertPosting(ctx context.Context, p model.Posting) (inserted bool, err error)
	// LinkSkills associates skills with a posting. Duplicate pairs are no-ops.
	LinkSkills(ctx context.Context, postingID string, skills []string) error
}

// FindOrCreateCompany is the insert-or-adopt operation: look the identity
// up, insert on miss, and on a duplicate-identity race adopt the row the
// concurrent writer created. Safe under concurrent ingestion runs.
//
// When the row already exists, missing geocode/description fields are
// backfilled from c; a backfill failure is not fatal to the lookup.
func FindOrCreateCompany(ctx context.Context, companies Companies, c model.Company) (string, error) {
	existing, err := companies.SelectCompany(ctx, c.ID)
	if err == nil {
		if needsBackfill(existing, c) {
			if err := companies.BackfillCompany(ctx, c); err != nil {
				return "", fmt.Errorf("backfill company %s: %w", c.ID, err)
			}
		}
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("select company %s: %w", c.ID, err)
	}

	err = companies.InsertCompany(ctx, c)
	if err == nil {
		return c.ID, nil
	}
	if errors.Is(err, ErrDuplicateID) {
		// Lost the race — another run inserted this identity first.
		adopted, selErr := companies.SelectCompany(ctx, c.ID)
		if selErr != nil {
			return "", fmt.Errorf("re-select company %s after duplicate: %w", c.ID, selErr)
		}
		return adopted.ID, nil
	}
	return "", fmt.Errorf("insert company %s: %w", c.ID, err)
}

func needsBackfill(existing *model.Company, c model.Company) bool {
	if existing.Latitude == nil && c.Latitude != nil {
		return true
	}
	if existing.Longitude == nil && c.Longitude != nil {
		return true
	}
	if existing.Description == nil && c.Description != nil {
		return true
	}
	return false
}
