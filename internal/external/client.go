// Package external fetches web search, market data and news about entities named in a report.
package external

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

const defaultTimeout = 20 * time.Second

// Sources bundles the enabled providers. A nil field means the source is switched off.
type Sources struct {
	Search     interfaces.WebSearcher
	Finance    interfaces.FinanceProvider
	News       interfaces.NewsProvider
	NewsWindow time.Duration
}

// NewSources builds the enabled providers from configuration. All providers share limiter.
func NewSources(cfg *config.ExternalConfig, limiter *transport.Limiter) (*Sources, error) {
	if limiter == nil {
		limiter = transport.NewLimiter(cfg.RequestsPerSecond, 0)
	}

	s := &Sources{NewsWindow: time.Duration(cfg.NewsWindowDays) * 24 * time.Hour}
	if cfg.WebSearch.Enabled {
		ws, err := NewWebSearch(cfg.WebSearch, limiter)
		if err != nil {
			return nil, err
		}
		s.Search = ws
	}
	if cfg.Finance.Enabled {
		fd, err := NewFinanceData(cfg.Finance, limiter)
		if err != nil {
			return nil, err
		}
		s.Finance = fd
	}
	if cfg.News.Enabled {
		n, err := NewNews(cfg.News, limiter)
		if err != nil {
			return nil, err
		}
		s.News = n
	}
	return s, nil
}

// Enabled reports whether any source is switched on.
func (s *Sources) Enabled() bool {
	return s != nil && (s.Search != nil || s.Finance != nil || s.News != nil)
}

func newEndpoint(name string, cfg config.EndpointConfig, limiter *transport.Limiter) (string, *transport.Client, error) {
	if cfg.BaseURL == "" {
		return "", nil, fmt.Errorf("%w: %s base_url is empty", interfaces.ErrProviderNotConfigured, name)
	}
	if cfg.APIKey == "" {
		return "", nil, fmt.Errorf("%w: %s api key is empty", interfaces.ErrProviderNotConfigured, name)
	}
	client := transport.NewClient(transport.Options{
		Timeout: defaultTimeout,
		Limiter: limiter,
	})
	return strings.TrimRight(cfg.BaseURL, "/"), client, nil
}

func buildURL(base, path string, params url.Values) string {
	return base + path + "?" + params.Encode()
}
