package feed

import (
	"strings"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

// ValidationResult reports whether a raw record may enter the pipeline and,
// when it may not, which required fields were missing.
type ValidationResult struct {
	IsValid  bool
	Warnings []string
}

// ValidateRecord checks a raw record for the fields the pipeline cannot do
// without. Invalid records are dropped and counted by the orchestrator,
// never inserted.
func ValidateRecord(raw model.RawJobRecord) ValidationResult {
	var warnings []string

	if strings.TrimSpace(raw.ID) == "" {
		warnings = append(warnings, "Missing or empty id")
	}
	if strings.TrimSpace(raw.Title) == "" {
		warnings = append(warnings, "Missing or empty title")
	}
	if strings.TrimSpace(raw.CompanyName) == "" {
		warnings = append(warnings, "Missing or empty company name")
	}
	if strings.TrimSpace(raw.Location) == "" {
		warnings = append(warnings, "Missing or empty location")
	}
	if strings.TrimSpace(raw.RedirectURL) == "" {
		warnings = append(warnings, "Missing or empty redirect URL")
	}
	if strings.TrimSpace(raw.Created) == "" {
		warnings = append(warnings, "Missing or empty created timestamp")
	}

	return ValidationResult{IsValid: len(warnings) == 0, Warnings: warnings}
}
