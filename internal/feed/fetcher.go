// Package feed talks to the upstream job-search API and validates raw
// records at the boundary. The transport is a black box to the rest of the
// pipeline: the orchestrator only sees the Searcher interface and how many
// records a page returned.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
)

const (
	adzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"
	httpTimeout   = 15 * time.Second

	// PageSize is the upstream page size; a shorter page means the last page.
	PageSize = 50

	// Source is the source literal stamped on every posting this
	// integration produces; part of the dedup key.
	Source = "adzuna"
)

// Searcher fetches one page of raw records for a search term. Implemented
// by AdzunaClient; the orchestrator drives pagination and pacing.
type Searcher interface {
	SearchPage(ctx context.Context, term, country string, page int) ([]model.RawJobRecord, error)
}

// AdzunaClient fetches job postings from the Adzuna public API.
type AdzunaClient struct {
	AppID  string
	AppKey string
	client *http.Client
}

// NewAdzunaClient constructs a client with a shared HTTP client.
func NewAdzunaClient(appID, appKey string) *AdzunaClient {
	return &AdzunaClient{
		AppID:  appID,
		AppKey: appKey,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	Category     adzunaCategory `json:"category"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

// SearchPage retrieves one page of results for a search term. Pages are
// 1-based. The caller is responsible for pacing — this method performs
// exactly one upstream request.
func (c *AdzunaClient) SearchPage(ctx context.Context, term, country string, page int) ([]model.RawJobRecord, error) {
	if c.AppID == "" || c.AppKey == "" {
		return nil, fmt.Errorf("adzuna credentials not configured")
	}

	endpoint := fmt.Sprintf("%s/%s/search/%d", adzunaBaseURL, country, page)

	params := url.Values{}
	params.Set("app_id", c.AppID)
	params.Set("app_key", c.AppKey)
	params.Set("results_per_page", strconv.Itoa(PageSize))
	params.Set("what", term)
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	records := make([]model.RawJobRecord, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		records = append(records, model.RawJobRecord{
			ID:           r.ID,
			Title:        r.Title,
			Description:  r.Description,
			CompanyName:  r.Company.DisplayName,
			Location:     r.Location.DisplayName,
			SalaryMin:    r.SalaryMin,
			SalaryMax:    r.SalaryMax,
			RedirectURL:  r.RedirectURL,
			ContractType: r.ContractType,
			ContractTime: r.ContractTime,
			Category:     r.Category.Label,
			Created:      r.Created,
		})
	}

	return records, nil
}
