package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error,omitempty"`
}

// WebSearch queries a SerpAPI-compatible search endpoint.
type WebSearch struct {
	baseURL string
	apiKey  string
	client  *transport.Client
}

// NewWebSearch creates a web search client.
func NewWebSearch(cfg config.EndpointConfig, limiter *transport.Limiter) (*WebSearch, error) {
	base, client, err := newEndpoint("web_search", cfg, limiter)
	if err != nil {
		return nil, err
	}
	return &WebSearch{baseURL: base, apiKey: cfg.APIKey, client: client}, nil
}

// Search returns at most limit organic results for query.
func (w *WebSearch) Search(ctx context.Context, query string, limit int) ([]interfaces.SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	params.Set("api_key", w.apiKey)

	var resp serpResponse
	if err := w.client.GetJSON(ctx, buildURL(w.baseURL, "/search.json", params), &resp); err != nil {
		return nil, fmt.Errorf("web search %q: %w", query, err)
	}
	if resp.Error != "" {
		return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: resp.Error}
	}

	hits := make([]interfaces.SearchHit, 0, limit)
	for _, r := range resp.OrganicResults {
		if len(hits) == limit {
			break
		}
		hits = append(hits, interfaces.SearchHit{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	return hits, nil
}
