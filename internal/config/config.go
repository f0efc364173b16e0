// Package config loads and validates runtime configuration: fail-fast
// environment variables for credentials and connections, plus a YAML search
// plan describing what one ingestion run does.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// Config holds all runtime configuration for the ingestion service.
type Config struct {
	DatabaseURL  string
	RedisURL     string
	AdzunaAppID  string
	AdzunaAppKey string

	ScrapeIntervalHours int // how often the cron job fires

	Plan Plan
}

// Plan is the YAML-configured search plan: which terms to ingest for which
// country, under which quota ceilings and pacing.
type Plan struct {
	Terms           []string      `yaml:"terms"`
	Country         string        `yaml:"country"`
	ResolverVersion string        `yaml:"resolver_version"`
	DailyLimit      int           `yaml:"daily_limit"`
	WeeklyLimit     int           `yaml:"weekly_limit"`
	MonthlyLimit    int           `yaml:"monthly_limit"`
	BudgetFraction  float64       `yaml:"budget_fraction"`
	MinDelay        time.Duration `yaml:"min_delay"`
}

// Limits returns the plan's ceilings in checkable form.
func (p Plan) Limits() model.QuotaLimits {
	return model.QuotaLimits{Daily: p.DailyLimit, Weekly: p.WeeklyLimit, Monthly: p.MonthlyLimit}
}

// DefaultPlan matches the Adzuna free tier and a conservative run share.
func DefaultPlan() Plan {
	return Plan{
		Country:         "us",
		ResolverVersion: "v1",
		DailyLimit:      250,
		WeeklyLimit:     1000,
		MonthlyLimit:    2500,
		BudgetFraction:  0.5,
		MinDelay:        time.Second,
	}
}

// Load reads environment variables and the plan file and returns a
// validated Config.
func Load(planPath string) (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	interval := 6
	if s := os.Getenv("SCRAPE_INTERVAL_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCRAPE_INTERVAL_HOURS must be a positive integer, got %q", s)
		}
		interval = v
	}

	plan, err := LoadPlan(planPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:         dbURL,
		RedisURL:            os.Getenv("REDIS_URL"), // optional: disables run lock + events when empty
		AdzunaAppID:         os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:        os.Getenv("ADZUNA_APP_KEY"),
		ScrapeIntervalHours: interval,
		Plan:                plan,
	}, nil
}

// LoadPlan decodes a plan file over the defaults. An empty path returns the
// defaults as-is.
func LoadPlan(path string) (Plan, error) {
	plan := DefaultPlan()
	if path == "" {
		return plan, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Plan{}, fmt.Errorf("open plan %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if err := plan.validate(); err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

func (p Plan) validate() error {
	if p.Country == "" {
		return fmt.Errorf("country is required")
	}
	if p.DailyLimit < 1 {
		return fmt.Errorf("daily_limit must be positive, got %d", p.DailyLimit)
	}
	if p.BudgetFraction <= 0 || p.BudgetFraction > 1 {
		return fmt.Errorf("budget_fraction must be in (0, 1], got %v", p.BudgetFraction)
	}
	if p.MinDelay < 0 {
		return fmt.Errorf("min_delay must not be negative, got %v", p.MinDelay)
	}
	return nil
}

// LoadDatabaseURL is the reduced loader for the offline migration tool,
// which needs nothing beyond the store.
func LoadDatabaseURL() (string, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return dbURL, nil
}
