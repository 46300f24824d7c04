// Package websearch provides the web_search built-in, backed by the Brave
// Search API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/evo/pkg/tools"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Result is one search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Client calls the Brave Search API.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// Config holds search client configuration.
type Config struct {
	APIKey string
	// Endpoint overrides the Brave API URL, for tests.
	Endpoint string
	// Timeout bounds each search request. Defaults to 15s.
	Timeout time.Duration
}

// NewClient creates a search client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs a query and returns up to count results.
func (c *Client) Search(ctx context.Context, query string, count int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if count <= 0 || count > 20 {
		count = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned HTTP %d", resp.StatusCode)
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Description: r.Description})
	}

	log.Debug().Str("query", query).Int("results", len(results)).Msg("Web search completed")
	return results, nil
}

// Tool wraps the client as the web_search built-in.
func Tool(client *Client) tools.Tool {
	return tools.NewFunc("web_search",
		"Search the web for current information. Returns titles, snippets and links.",
		[]tools.Parameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "count", Type: "integer", Description: "Number of results (1-20)", Default: float64(5)},
		},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return "", err
			}
			count := 5
			if v, ok := args["count"].(float64); ok {
				count = int(v)
			}

			results, err := client.Search(ctx, query, count)
			if err != nil {
				return "", &tools.FailureError{Kind: tools.FailToolError, Message: err.Error()}
			}
			if len(results) == 0 {
				return "No results found.", nil
			}
			return Format(results), nil
		})
}

// Format renders results as planner-readable text.
func Format(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("**%s**\n%s\nLink: %s", r.Title, r.Description, r.URL))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
