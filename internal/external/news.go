package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

type newsResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// News queries a NewsAPI-compatible /v2/everything endpoint.
type News struct {
	baseURL string
	apiKey  string
	client  *transport.Client
	now     func() time.Time
}

// NewNews creates a news client.
func NewNews(cfg config.EndpointConfig, limiter *transport.Limiter) (*News, error) {
	base, client, err := newEndpoint("news", cfg, limiter)
	if err != nil {
		return nil, err
	}
	return &News{baseURL: base, apiKey: cfg.APIKey, client: client, now: time.Now}, nil
}

// Headlines returns at most limit articles about query published since the given time.
func (n *News) Headlines(ctx context.Context, query string, since time.Time, limit int) ([]interfaces.NewsArticle, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("from", since.Format("2006-01-02"))
	params.Set("to", n.now().Format("2006-01-02"))
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("apiKey", n.apiKey)

	var resp newsResponse
	if err := n.client.GetJSON(ctx, buildURL(n.baseURL, "/v2/everything", params), &resp); err != nil {
		return nil, fmt.Errorf("news %q: %w", query, err)
	}
	if resp.Status != "ok" {
		return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: resp.Message}
	}

	out := make([]interfaces.NewsArticle, 0, limit)
	for _, a := range resp.Articles {
		if len(out) == limit {
			break
		}
		out = append(out, interfaces.NewsArticle{
			Title:       a.Title,
			Source:      a.Source.Name,
			URL:         a.URL,
			Description: a.Description,
			PublishedAt: a.PublishedAt,
		})
	}
	return out, nil
}
