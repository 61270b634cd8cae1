package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

type overviewResponse struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	PERatio              string `json:"PERatio"`
	EPS                  string `json:"EPS"`
	ProfitMargin         string `json:"ProfitMargin"`
	MarketCapitalization string `json:"MarketCapitalization"`
	Note                 string `json:"Note,omitempty"`
	Information          string `json:"Information,omitempty"`
	ErrorMessage         string `json:"Error Message,omitempty"`
}

// FinanceData reads company ratios from an Alpha Vantage-compatible OVERVIEW endpoint.
type FinanceData struct {
	baseURL string
	apiKey  string
	client  *transport.Client
}

// NewFinanceData creates a market data client.
func NewFinanceData(cfg config.EndpointConfig, limiter *transport.Limiter) (*FinanceData, error) {
	base, client, err := newEndpoint("finance", cfg, limiter)
	if err != nil {
		return nil, err
	}
	return &FinanceData{baseURL: base, apiKey: cfg.APIKey, client: client}, nil
}

// Overview returns the ratios for symbol. Values the API reports as "None" or "-" are zero.
func (f *FinanceData) Overview(ctx context.Context, symbol string) (*interfaces.FinanceOverview, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	params.Set("apikey", f.apiKey)

	var resp overviewResponse
	if err := f.client.GetJSON(ctx, buildURL(f.baseURL, "/query", params), &resp); err != nil {
		return nil, fmt.Errorf("finance overview %q: %w", symbol, err)
	}

	// Alpha Vantage reports throttling and bad symbols with a 200.
	switch {
	case resp.Note != "":
		return nil, &transport.ProviderError{Code: transport.ErrRateLimited, Message: resp.Note}
	case resp.ErrorMessage != "":
		return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: resp.ErrorMessage}
	case resp.Symbol == "":
		msg := resp.Information
		if msg == "" {
			msg = "no overview for " + symbol
		}
		return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: msg}
	}

	return &interfaces.FinanceOverview{
		Symbol:       resp.Symbol,
		Name:         resp.Name,
		PERatio:      parseNumber(resp.PERatio),
		EPS:          parseNumber(resp.EPS),
		ProfitMargin: parseNumber(resp.ProfitMargin),
		MarketCap:    parseNumber(resp.MarketCapitalization),
	}, nil
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
