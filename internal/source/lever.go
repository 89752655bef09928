package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// LeverSite identifies one company site on Lever.
type LeverSite struct {
	Slug    string
	Company string
}

type leverCategories struct {
	Location   string `json:"location"`
	Team       string `json:"team"`
	Commitment string `json:"commitment"`
}

type leverPosting struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Categories       leverCategories `json:"categories"`
	DescriptionPlain string          `json:"descriptionPlain"`
	HostedURL        string          `json:"hostedUrl"`
	ApplyURL         string          `json:"applyUrl"`
	CreatedAt        int64           `json:"createdAt"` // ms since epoch
	WorkplaceType    string          `json:"workplaceType"`
}

// LeverClient fetches postings from the Lever public postings API.
type LeverClient struct {
	sites   []LeverSite
	client  *http.Client
	baseURL string
}

// NewLeverClient creates a client covering the given sites.
func NewLeverClient(sites []LeverSite, client *http.Client) *LeverClient {
	return &LeverClient{
		sites:   sites,
		client:  client,
		baseURL: leverBaseURL,
	}
}

func (c *LeverClient) Source() model.Source {
	return model.SourceLever
}

// Search fetches every configured site, normalizes, and filters
// locally (the postings API has no search parameters).
func (c *LeverClient) Search(ctx context.Context, filters model.SearchFilters) ([]model.UnifiedJobPosting, error) {
	var out []model.UnifiedJobPosting
	for _, site := range c.sites {
		postings, err := c.fetchSite(ctx, site)
		if err != nil {
			return out, fmt.Errorf("lever site %s: %w", site.Slug, err)
		}
		for _, p := range postings {
			if matchesFilters(p, filters) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *LeverClient) fetchSite(ctx context.Context, site LeverSite) ([]model.UnifiedJobPosting, error) {
	url := fmt.Sprintf("%s/%s?mode=json", c.baseURL, site.Slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp []leverPosting
	if err := doJSON(c.client, req, &resp); err != nil {
		return nil, err
	}

	postings := make([]model.UnifiedJobPosting, 0, len(resp))
	for _, lp := range resp {
		postings = append(postings, c.normalize(site, lp))
	}
	return postings, nil
}

// GetJob fetches a single posting by its Lever ID.
func (c *LeverClient) GetJob(ctx context.Context, id string) (*model.UnifiedJobPosting, error) {
	sourceID := strings.TrimPrefix(id, string(model.SourceLever)+":")
	for _, site := range c.sites {
		url := fmt.Sprintf("%s/%s/%s", c.baseURL, site.Slug, sourceID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		var lp leverPosting
		if err := doJSON(c.client, req, &lp); err != nil {
			var httpErr *model.HTTPError
			if asHTTPNotFound(err, &httpErr) {
				continue
			}
			return nil, err
		}
		p := c.normalize(site, lp)
		return &p, nil
	}
	return nil, nil
}

// IsAvailable probes the first configured site with a short timeout.
func (c *LeverClient) IsAvailable(ctx context.Context) bool {
	if len(c.sites) == 0 {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/%s?mode=json&limit=1", c.baseURL, c.sites[0].Slug)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
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

func (c *LeverClient) normalize(site LeverSite, lp leverPosting) model.UnifiedJobPosting {
	remote := detectRemote(lp.Text, lp.Categories.Location)
	if strings.EqualFold(lp.WorkplaceType, "remote") {
		remote = model.RemoteFull
	} else if strings.EqualFold(lp.WorkplaceType, "hybrid") {
		remote = model.RemoteHybrid
	}

	applyURL := lp.ApplyURL
	if applyURL == "" {
		applyURL = lp.HostedURL
	}

	p := model.UnifiedJobPosting{
		ID:              fmt.Sprintf("%s:%s", model.SourceLever, lp.ID),
		SourceID:        lp.ID,
		Source:          model.SourceLever,
		Title:           lp.Text,
		Description:     lp.DescriptionPlain,
		Company:         model.Company{Name: site.Company},
		Location:        parseLocation(lp.Categories.Location),
		RemoteOption:    remote,
		EmploymentType:  strings.ToLower(lp.Categories.Commitment),
		ExperienceLevel: inferLevel(lp.Text),
		RequiredSkills:  extractSkills(lp.DescriptionPlain),
		Application:     model.Application{URL: applyURL},
		IsActive:        true,
	}
	if lp.CreatedAt > 0 {
		p.PostedAt = time.UnixMilli(lp.CreatedAt).UTC()
		p.UpdatedAt = p.PostedAt
	}
	p.Finalize()
	return p
}
