package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
)

// SearXNG searches the web through a SearXNG instance's JSON API.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a provider for the instance rooted at baseURL
// (e.g. "http://localhost:8080").
func NewSearXNG(baseURL string, timeout time.Duration) *SearXNG {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SearXNG) Name() string { return "web" }

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (s *SearXNG) Search(ctx context.Context, query string, topK int) ([]model.Snippet, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	if topK <= 0 {
		topK = 5
	}

	reqURL := fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errx.Service("searxng", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errx.Service("searxng", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}

	snippets := make([]model.Snippet, 0, topK)
	for i, r := range sr.Results {
		if len(snippets) >= topK {
			break
		}
		text := strings.TrimSpace(r.Content)
		if text == "" {
			text = strings.TrimSpace(r.Title)
		}
		if text == "" {
			continue
		}
		score := r.Score
		if score <= 0 {
			score = 1 / float64(i+1)
		}
		snippets = append(snippets, model.Snippet{
			Text:     text,
			Score:    score,
			Source:   s.Name(),
			Metadata: map[string]any{"title": r.Title, "url": r.URL},
		})
	}
	return snippets, nil
}

var _ Provider = (*SearXNG)(nil)
