package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	tavilyEndpoint  = "https://api.tavily.com/search"
	searchMaxResult = 5
	snippetMaxChars = 200
	userAgent       = "orchid/0.1"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// BuiltinConfig configures the built-in capabilities
type BuiltinConfig struct {
	// SearchAPIKey enables real web search. When empty, web_search
	// returns mock results so development works offline.
	SearchAPIKey string
	// FetchMaxBytes caps how much of a fetched page is read
	FetchMaxBytes int
	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// RegisterBuiltins registers the web_search and fetch_url capabilities
func RegisterBuiltins(g *Gateway, cfg BuiltinConfig) error {
	if cfg.FetchMaxBytes <= 0 {
		cfg.FetchMaxBytes = 64 * 1024
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	if err := g.Register(Capability{
		Name:        "web_search",
		Description: "Search the web for information on a topic. Returns a list of results with title, URL, and snippet.",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "A specific, focused search query", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			query, _ := params["query"].(string)
			if cfg.SearchAPIKey == "" {
				return mockSearchResults(query), nil
			}
			return tavilySearch(ctx, client, cfg.SearchAPIKey, query)
		},
	}); err != nil {
		return err
	}

	if err := g.Register(Capability{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its text content with HTML stripped. Use this to read the full content of a URL found via web_search.",
		Parameters: []Parameter{
			{Name: "url", Type: "string", Description: "The URL to fetch", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			url, _ := params["url"].(string)
			return fetchURL(ctx, client, url, cfg.FetchMaxBytes)
		},
	}); err != nil {
		return err
	}

	return nil
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func tavilySearch(ctx context.Context, client *http.Client, apiKey, query string) (string, error) {
	body, err := json.Marshal(tavilyRequest{APIKey: apiKey, Query: query, MaxResults: searchMaxResult})
	if err != nil {
		return "", fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(parsed.Results) == 0 {
		return "No results found.", nil
	}

	entries := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		snippet := r.Content
		if len(snippet) > snippetMaxChars {
			snippet = snippet[:snippetMaxChars]
		}
		entries = append(entries, fmt.Sprintf("- **%s**\n  %s\n  %s", r.Title, r.URL, snippet))
	}

	return strings.Join(entries, "\n\n"), nil
}

// mockSearchResults keeps the search surface usable without an API key
func mockSearchResults(query string) string {
	return fmt.Sprintf(
		"[Mock search results for: %s]\n\n"+
			"- **Result 1**: Example article about %s\n"+
			"  https://example.com/1\n"+
			"  This is a mock snippet about %s.\n\n"+
			"- **Result 2**: Another source on %s\n"+
			"  https://example.com/2\n"+
			"  Additional mock information about %s.",
		query, query, query, query, query)
}

func fetchURL(ctx context.Context, client *http.Client, url string, maxBytes int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching %s: %v", url, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error fetching %s: status %d", url, resp.StatusCode), nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)))
	if err != nil {
		return fmt.Sprintf("Error fetching %s: %v", url, err), nil
	}

	text := stripHTML(string(raw))
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" {
		return "No readable content found at this URL.", nil
	}

	return text, nil
}

// stripHTML removes tags plus the contents of script, style, and
// noscript elements
func stripHTML(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	skipDepth := 0
	i := 0
	for i < len(input) {
		if input[i] != '<' {
			if skipDepth == 0 {
				out.WriteByte(input[i])
			}
			i++
			continue
		}

		end := strings.IndexByte(input[i:], '>')
		if end < 0 {
			break
		}
		tag := strings.ToLower(strings.TrimSpace(input[i+1 : i+end]))

		switch {
		case strings.HasPrefix(tag, "script"), strings.HasPrefix(tag, "style"), strings.HasPrefix(tag, "noscript"):
			skipDepth++
		case strings.HasPrefix(tag, "/script"), strings.HasPrefix(tag, "/style"), strings.HasPrefix(tag, "/noscript"):
			if skipDepth > 0 {
				skipDepth--
			}
		default:
			// Tags act as text separators so adjacent blocks do not merge
			if skipDepth == 0 {
				out.WriteByte(' ')
			}
		}

		i += end + 1
	}

	return out.String()
}
