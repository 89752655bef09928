package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

const remotiveBaseURL = "https://remotive.com/api/remote-jobs"

type remotiveJob struct {
	ID                        int64  `json:"id"`
	URL                       string `json:"url"`
	Title                     string `json:"title"`
	CompanyName               string `json:"company_name"`
	CompanyLogo               string `json:"company_logo"`
	Category                  string `json:"category"`
	JobType                   string `json:"job_type"`
	PublicationDate           string `json:"publication_date"`
	CandidateRequiredLocation string `json:"candidate_required_location"`
	Salary                    string `json:"salary"`
	Description               string `json:"description"`
}

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

// RemotiveClient fetches postings from the Remotive remote-jobs API,
// which supports server-side search and category parameters.
type RemotiveClient struct {
	client  *http.Client
	baseURL string
}

// NewRemotiveClient creates a Remotive client.
func NewRemotiveClient(client *http.Client) *RemotiveClient {
	return &RemotiveClient{client: client, baseURL: remotiveBaseURL}
}

func (c *RemotiveClient) Source() model.Source {
	return model.SourceRemotive
}

// Search queries the API with the supported parameters and applies the
// rest of the filters locally.
func (c *RemotiveClient) Search(ctx context.Context, filters model.SearchFilters) ([]model.UnifiedJobPosting, error) {
	q := url.Values{}
	if filters.Keywords != "" {
		q.Set("search", filters.Keywords)
	}
	if filters.Category != "" {
		q.Set("category", filters.Category)
	}

	endpoint := c.baseURL
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp remotiveResponse
	if err := doJSON(c.client, req, &resp); err != nil {
		return nil, fmt.Errorf("remotive search: %w", err)
	}

	out := make([]model.UnifiedJobPosting, 0, len(resp.Jobs))
	for _, rj := range resp.Jobs {
		p := c.normalize(rj)
		if matchesFilters(p, filters) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetJob scans the feed for the given ID; the API has no per-job
// endpoint.
func (c *RemotiveClient) GetJob(ctx context.Context, id string) (*model.UnifiedJobPosting, error) {
	sourceID := strings.TrimPrefix(id, string(model.SourceRemotive)+":")
	postings, err := c.Search(ctx, model.SearchFilters{})
	if err != nil {
		return nil, err
	}
	for i := range postings {
		if postings[i].SourceID == sourceID {
			return &postings[i], nil
		}
	}
	return nil, nil
}

// IsAvailable probes the API root with a short timeout.
func (c *RemotiveClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"?limit=1", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// salaryRangeRegex matches "$120,000 - $150,000" style salary strings.
var salaryRangeRegex = regexp.MustCompile(`\$?([\d,]+)k?\s*[-–]\s*\$?([\d,]+)k?`)

func parseSalary(raw string) *model.Salary {
	m := salaryRangeRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	min, err1 := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	max, err2 := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err1 != nil || err2 != nil || min <= 0 || max < min {
		return nil
	}
	// "120k - 150k" shorthand.
	if strings.Contains(raw, "k") && max < 1000 {
		min *= 1000
		max *= 1000
	}
	return &model.Salary{Min: min, Max: max, Currency: "USD", Period: "year"}
}

func (c *RemotiveClient) normalize(rj remotiveJob) model.UnifiedJobPosting {
	description := extractText(rj.Description)
	p := model.UnifiedJobPosting{
		ID:              fmt.Sprintf("%s:%d", model.SourceRemotive, rj.ID),
		SourceID:        fmt.Sprintf("%d", rj.ID),
		Source:          model.SourceRemotive,
		Title:           rj.Title,
		Description:     description,
		Company:         model.Company{Name: rj.CompanyName, Logo: rj.CompanyLogo},
		Location:        parseLocation(rj.CandidateRequiredLocation),
		RemoteOption:    model.RemoteFull,
		EmploymentType:  strings.ReplaceAll(rj.JobType, "_", " "),
		ExperienceLevel: inferLevel(rj.Title),
		Salary:          parseSalary(rj.Salary),
		RequiredSkills:  extractSkills(description),
		Application:     model.Application{URL: rj.URL},
		IsActive:        true,
	}
	if t, err := time.Parse("2006-01-02T15:04:05", rj.PublicationDate); err == nil {
		p.PostedAt = t.UTC()
		p.UpdatedAt = p.PostedAt
	}
	p.Finalize()
	return p
}
