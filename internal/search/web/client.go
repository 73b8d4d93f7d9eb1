package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/metrics"
	"github.com/maya-ai/backend/pkg/logger"
)

const searchEndpoint = "https://api.tavily.com/search"

const unavailableMessage = "Web search is currently unavailable."

// Client wraps the Tavily search API for the market specialist. Its Snippets
// method never fails: any error degrades to a human-readable notice that is
// injected into the prompt in place of live data.
type Client struct {
	apiKey     string
	maxResults int
	httpClient *http.Client
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func NewClient(apiKey string, maxResults int, timeout time.Duration) *Client {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Snippets returns a formatted block of web results for the query, suitable
// for direct inclusion in a prompt.
func (c *Client) Snippets(ctx context.Context, query string) string {
	if c.apiKey == "" {
		return unavailableMessage + " (API key missing)"
	}

	results, err := c.search(ctx, query)
	if err != nil {
		logger.Warn("Web search failed", zap.String("query", query), zap.Error(err))
		metrics.WebSearchesTotal.WithLabelValues("error").Inc()
		return unavailableMessage
	}
	metrics.WebSearchesTotal.WithLabelValues("ok").Inc()

	if len(results) == 0 {
		return "No relevant information found."
	}

	var builder strings.Builder
	for _, r := range results {
		content := r.Content
		if strings.TrimSpace(content) == "" {
			content = c.scrapeContent(ctx, r.URL)
		}
		if strings.TrimSpace(content) == "" {
			content = "No content available."
		}
		builder.WriteString(fmt.Sprintf("Source: %s (%s)\nContent: %s\n\n", r.Title, r.URL, content))
	}

	return strings.TrimSpace(builder.String())
}

func (c *Client) search(ctx context.Context, query string) ([]searchResult, error) {
	payload := map[string]any{
		"api_key":      c.apiKey,
		"query":        query,
		"search_depth": "advanced",
		"max_results":  c.maxResults,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(data))
	}

	var searchResp struct {
		Results []searchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	logger.Debug("Web search completed",
		zap.String("query", query),
		zap.Int("results", len(searchResp.Results)),
	)

	return searchResp.Results, nil
}

// scrapeContent fetches a result page and extracts its visible text when the
// search API returned no snippet body.
func (c *Client) scrapeContent(ctx context.Context, urlStr string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())

	if len(text) > 2000 {
		text = text[:2000]
	}

	return text
}
