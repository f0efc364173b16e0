// Package model defines shared data structures for the ingestion pipeline
// and the identity migration tooling.
package model

import "time"

// RawJobRecord is a single job listing as returned by the upstream search
// API, reduced to the fields the pipeline actually reads. It is validated at
// the boundary (feed.ValidateRecord) before anything downstream touches it.
type RawJobRecord struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CompanyName  string  `json:"companyName"`
	Location     string  `json:"location"`
	SalaryMin    float64 `json:"salaryMin,omitempty"`
	SalaryMax    float64 `json:"salaryMax,omitempty"`
	PayPeriod    string  `json:"payPeriod,omitempty"` // "hour", "day", "week", "month" or "" (annual)
	RedirectURL  string  `json:"redirectUrl"`
	ContractType string  `json:"contractType,omitempty"`
	ContractTime string  `json:"contractTime,omitempty"`
	Category     string  `json:"category,omitempty"`
	Created      string  `json:"created"` // upstream creation timestamp, RFC3339-ish
}

// Posting is one job listing as stored. The (ExternalID, Source, Country)
// triple is the dedup key: the same external id can recur across countries
// or sources, so none of the three alone is unique.
type Posting struct {
	ID           string // digest of external_id|source|country, stable across runs
	ExternalID   string
	Source       string // "adzuna", "manual", ...
	Country      string
	Title        string
	Description  string
	CompanyID    string // Company identity
	Location     string
	City         string
	State        string
	SalaryMin    float64
	SalaryMax    float64
	SalaryMedian float64
	SalaryRaw    float64 // as reported, before annualization
	Remote       bool
	ContractType string
	SourceURL    string
	Category     string
	ListedAt     time.Time
	ImportedAt   time.Time
}

// Company is one employer entity. ID is the resolver's identity hash —
// exactly one row may exist per identity, and the identity is rewritten
// only by the migration applier.
type Company struct {
	ID          string
	DisplayName string
	City        string
	State       string
	Country     string
	Latitude    *float64
	Longitude   *float64
	Description *string
}

// QuotaUsage holds the request counts for the current daily/weekly/monthly
// period keys. A period key with no stored row reads as zero.
type QuotaUsage struct {
	Daily   int
	Weekly  int
	Monthly int
}

// QuotaLimits are caller-supplied ceilings checked daily-first.
type QuotaLimits struct {
	Daily   int
	Weekly  int
	Monthly int
}

// MigrationMapping is one transient ledger row staging an identity re-key.
// Before the applier may run, NewID must be unique across the ledger.
type MigrationMapping struct {
	OldID          string
	NewID          string
	NormalizedName string
}

// RunSummary aggregates the outcome of one ingestion run. It is logged and
// published at run end; per-record failures land here, never abort the run.
type RunSummary struct {
	Country   string         `json:"country"`
	Terms     []string       `json:"terms"`
	Requests  int            `json:"requests"`
	Pages     int            `json:"pages"`
	Fetched   int            `json:"fetched"`
	Invalid   int            `json:"invalid"`
	Inserted  int            `json:"inserted"`
	Updated   int            `json:"updated"`
	Failed    int            `json:"failed"`
	Aborted   bool           `json:"aborted"`
	Reason    string         `json:"reason,omitempty"`
	TermNotes map[string]string `json:"termNotes,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
}
