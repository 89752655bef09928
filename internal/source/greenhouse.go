package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// GreenhouseBoard identifies one company board on Greenhouse.
type GreenhouseBoard struct {
	Token   string
	Company string
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
	FirstPub    string             `json:"first_published"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseClient fetches postings from the Greenhouse public boards
// API. The API has no server-side search, so filters are applied
// locally after normalization.
type GreenhouseClient struct {
	boards  []GreenhouseBoard
	client  *http.Client
	baseURL string
}

// NewGreenhouseClient creates a client covering the given boards.
func NewGreenhouseClient(boards []GreenhouseBoard, client *http.Client) *GreenhouseClient {
	return &GreenhouseClient{
		boards:  boards,
		client:  client,
		baseURL: greenhouseBaseURL,
	}
}

func (c *GreenhouseClient) Source() model.Source {
	return model.SourceGreenhouse
}

// Search fetches every configured board, normalizes, and filters.
func (c *GreenhouseClient) Search(ctx context.Context, filters model.SearchFilters) ([]model.UnifiedJobPosting, error) {
	var out []model.UnifiedJobPosting
	for _, board := range c.boards {
		postings, err := c.fetchBoard(ctx, board)
		if err != nil {
			return out, fmt.Errorf("greenhouse board %s: %w", board.Token, err)
		}
		for _, p := range postings {
			if matchesFilters(p, filters) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *GreenhouseClient) fetchBoard(ctx context.Context, board GreenhouseBoard) ([]model.UnifiedJobPosting, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", c.baseURL, board.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var resp greenhouseResponse
	if err := doJSON(c.client, req, &resp); err != nil {
		return nil, err
	}

	postings := make([]model.UnifiedJobPosting, 0, len(resp.Jobs))
	for _, gj := range resp.Jobs {
		postings = append(postings, c.normalize(board, gj))
	}
	return postings, nil
}

// GetJob resolves a source-prefixed or bare Greenhouse job ID by
// scanning the configured boards.
func (c *GreenhouseClient) GetJob(ctx context.Context, id string) (*model.UnifiedJobPosting, error) {
	sourceID := strings.TrimPrefix(id, string(model.SourceGreenhouse)+":")
	for _, board := range c.boards {
		url := fmt.Sprintf("%s/%s/jobs/%s", c.baseURL, board.Token, sourceID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		var gj greenhouseJob
		if err := doJSON(c.client, req, &gj); err != nil {
			var httpErr *model.HTTPError
			if asHTTPNotFound(err, &httpErr) {
				continue
			}
			return nil, err
		}
		p := c.normalize(board, gj)
		return &p, nil
	}
	return nil, nil
}

// IsAvailable probes the first configured board with a short timeout.
func (c *GreenhouseClient) IsAvailable(ctx context.Context) bool {
	if len(c.boards) == 0 {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/%s/jobs", c.baseURL, c.boards[0].Token)
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

func (c *GreenhouseClient) normalize(board GreenhouseBoard, gj greenhouseJob) model.UnifiedJobPosting {
	description := extractText(gj.Content)
	p := model.UnifiedJobPosting{
		ID:              fmt.Sprintf("%s:%d", model.SourceGreenhouse, gj.ID),
		SourceID:        fmt.Sprintf("%d", gj.ID),
		Source:          model.SourceGreenhouse,
		Title:           gj.Title,
		Description:     description,
		Company:         model.Company{Name: board.Company},
		Location:        parseLocation(gj.Location.Name),
		RemoteOption:    detectRemote(gj.Title, gj.Location.Name),
		ExperienceLevel: inferLevel(gj.Title),
		RequiredSkills:  extractSkills(description),
		Application:     model.Application{URL: gj.AbsoluteURL},
		IsActive:        true,
	}
	if t, err := time.Parse(time.RFC3339, gj.FirstPub); err == nil {
		p.PostedAt = t
	}
	if t, err := time.Parse(time.RFC3339, gj.UpdatedAt); err == nil {
		p.UpdatedAt = t
		if p.PostedAt.IsZero() {
			p.PostedAt = t
		}
	}
	p.Finalize()
	return p
}
