package ingest

import "strings"

// skillKeywords maps functional skill categories to the keywords that
// signal them. Matching is a case-insensitive substring scan over
// title + description; category quality is not a goal here, only the
// idempotent data contract with posting_skills.
var skillKeywords = map[string][]string{
	"software_development": {"software engineer", "developer", "programming", "backend", "frontend", "full stack"},
	"data":                 {"data analyst", "data engineer", "data scientist", "analytics", "sql"},
	"cloud_infrastructure": {"devops", "cloud", "kubernetes", "aws", "azure", "infrastructure"},
	"design":               {"ux", "ui designer", "graphic design", "product design"},
	"management":           {"project manager", "product manager", "team lead", "scrum"},
	"sales_marketing":      {"sales", "marketing", "account executive", "seo"},
	"finance":              {"accounting", "financial analyst", "bookkeeping", "payroll"},
	"healthcare":           {"nurse", "physician", "clinical", "patient care"},
}

// TagSkills returns the skill categories whose keywords appear in the
// posting's title or description. Order is not significant; duplicates are
// impossible by construction.
func TagSkills(title, description string) []string {
	hay := strings.ToLower(title + " " + description)

	var tags []string
	for skill, keywords := range skillKeywords {
		for _, kw := range keywords {
			if strings.Contains(hay, kw) {
				tags = append(tags, skill)
				break
			}
		}
	}
	return tags
}
