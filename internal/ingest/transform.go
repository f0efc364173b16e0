// Package ingest drives the fetch → validate → resolve → upsert pipeline
// for one run, and maps raw upstream records into stored postings.
package ingest

import (
	"strings"
	"time"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/identity"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// Annualization multipliers for pay-period hints. Salary is treated as
// already annual unless the record says otherwise.
const (
	hoursPerYear  = 2080
	daysPerYear   = 260
	weeksPerYear  = 52
	monthsPerYear = 12
)

// Transformer maps one raw upstream record into the internal Posting shape.
// Pure: no I/O, no side effects.
type Transformer struct {
	Resolver *identity.Resolver
	Source   string
	now      func() time.Time
}

// NewTransformer returns a Transformer stamping postings with the given
// source literal.
func NewTransformer(r *identity.Resolver, source string) *Transformer {
	return &Transformer{Resolver: r, Source: source, now: time.Now}
}

// Transform derives the posting and the company it references. The posting
// id is a digest of the dedup key, so re-observing the same record always
// computes the same row identity.
func (t *Transformer) Transform(raw model.RawJobRecord, country string) (model.Posting, model.Company) {
	city, state := ParseLocation(raw.Location)
	companyID := t.Resolver.Resolve(raw.CompanyName, city, state)

	min := annualize(raw.SalaryMin, raw.PayPeriod)
	max := annualize(raw.SalaryMax, raw.PayPeriod)
	median := salaryMedian(min, max)

	listedAt, _ := time.Parse(time.RFC3339, raw.Created)

	return model.Posting{
			ID:           identity.Hash(raw.ID + "|" + t.Source + "|" + country),
			ExternalID:   raw.ID,
			Source:       t.Source,
			Country:      country,
			Title:        raw.Title,
			Description:  raw.Description,
			CompanyID:    companyID,
			Location:     raw.Location,
			City:         city,
			State:        state,
			SalaryMin:    min,
			SalaryMax:    max,
			SalaryMedian: median,
			SalaryRaw:    salaryMedian(raw.SalaryMin, raw.SalaryMax),
			Remote:       isRemote(raw),
			ContractType: contractType(raw),
			SourceURL:    raw.RedirectURL,
			Category:     raw.Category,
			ListedAt:     listedAt,
			ImportedAt:   t.now(),
		}, model.Company{
			ID:          companyID,
			DisplayName: raw.CompanyName,
			City:        city,
			State:       state,
			Country:     country,
		}
}

// ParseLocation splits a display location into (city, state): the last two
// comma-separated segments, city before state. A single segment is the city.
func ParseLocation(location string) (city, state string) {
	parts := strings.Split(location, ",")
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	switch len(trimmed) {
	case 0:
		return "", ""
	case 1:
		return trimmed[0], ""
	default:
		return trimmed[len(trimmed)-2], trimmed[len(trimmed)-1]
	}
}

func annualize(amount float64, payPeriod string) float64 {
	if amount <= 0 {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(payPeriod)) {
	case "hour", "hourly":
		return amount * hoursPerYear
	case "day", "daily":
		return amount * daysPerYear
	case "week", "weekly":
		return amount * weeksPerYear
	case "month", "monthly":
		return amount * monthsPerYear
	default:
		return amount
	}
}

// salaryMedian is the midpoint when both bounds exist, otherwise whichever
// bound is present.
func salaryMedian(min, max float64) float64 {
	switch {
	case min > 0 && max > 0:
		return (min + max) / 2
	case max > 0:
		return max
	default:
		return min
	}
}

func isRemote(raw model.RawJobRecord) bool {
	hay := strings.ToLower(raw.Title + " " + raw.Location)
	return strings.Contains(hay, "remote")
}

func contractType(raw model.RawJobRecord) string {
	if raw.ContractType != "" {
		return raw.ContractType
	}
	return raw.ContractTime
}
