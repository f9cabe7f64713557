package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"dossier/internal/evidence"
	"dossier/internal/logging"
	"dossier/internal/tools"
)

// DefaultEndpoint is DuckDuckGo's JavaScript-free results page.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// maxResultsCap bounds what a caller can ask for.
const maxResultsCap = 30

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearcher queries DuckDuckGo and caches what it finds.
type WebSearcher struct {
	endpoint   string
	client     *http.Client
	maxResults int
	cache      *ResultCache
}

// NewWebSearcher creates a searcher. A nil cache disables caching and a nil
// client uses a client with a 30s timeout.
func NewWebSearcher(endpoint string, maxResults int, cache *ResultCache, client *http.Client) *WebSearcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebSearcher{endpoint: endpoint, client: client, maxResults: maxResults, cache: cache}
}

// Tool returns the web_search tool backed by this searcher.
func (s *WebSearcher) Tool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the open web for information about the subject. Returns titles, URLs and snippets.",
		Category:    tools.CategoryWeb,
		Priority:    75,
		Execute:     s.execute,
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
				"max_results": {
					Type:        "integer",
					Description: fmt.Sprintf("Maximum number of results to return (default: %d)", s.maxResults),
					Default:     s.maxResults,
				},
			},
		},
	}
}

func (s *WebSearcher) execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	maxResults := s.maxResults
	switch mr := args["max_results"].(type) {
	case int:
		if mr > 0 {
			maxResults = mr
		}
	case float64:
		if mr > 0 {
			maxResults = int(mr)
		}
	}
	if maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}

	results, err := s.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		logging.Tools("Web search returned no results for: %s", query)
		return tools.NoData("No results found for: " + query), nil
	}

	findings := make([]evidence.Finding, 0, len(results))
	for _, r := range results {
		findings = append(findings, evidence.Finding{
			Source:  "web_search",
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Snippet,
		})
	}
	return &tools.Result{Data: findings}, nil
}

// Search returns up to maxResults results for query, consulting the cache first.
func (s *WebSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	key := searchKey(query, maxResults)
	if s.cache != nil {
		if entry, ok := s.cache.Get(key); ok {
			logging.ToolsDebug("Search cache hit: %q (age=%v)", query, time.Since(entry.CreatedAt))
			return entry.Results, nil
		}
	}

	logging.ToolsDebug("Web search: query=%q, max_results=%d", query, maxResults)
	results, err := s.searchDuckDuckGo(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(key, results)
	}
	logging.Tools("Web search completed: %d results for %q", len(results), query)
	return results, nil
}

// maxPageBytes caps how much of a results page is read.
const maxPageBytes = 1 << 20

func (s *WebSearcher) searchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	// The HTML endpoint serves an empty page to clients that do not look like browsers.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)")
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read results page: %w", err)
	}
	return parseDuckDuckGoResults(string(page), maxResults)
}

// parseDuckDuckGoResults pulls organic hits out of a results page in
// document order. Ads and hits without a title link are skipped, and a URL
// seen twice is kept once.
func parseDuckDuckGoResults(page string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []SearchResult
	seen := make(map[string]bool)
	walk(doc, func(n *html.Node) bool {
		if len(results) >= maxResults {
			return false
		}
		if !isElement(n, "div") || !hasClass(n, "result") || !hasClass(n, "results_links") {
			return true
		}
		if hasClass(n, "result--ad") {
			return false
		}
		if r := readHit(n); r.URL != "" && r.Title != "" && !seen[r.URL] {
			seen[r.URL] = true
			results = append(results, r)
		}
		return false
	})
	return results, nil
}

func readHit(div *html.Node) SearchResult {
	var r SearchResult
	walk(div, func(n *html.Node) bool {
		if !isElement(n, "a") {
			return true
		}
		switch {
		case hasClass(n, "result__a"):
			r.URL = unwrapRedirect(attr(n, "href"))
			r.Title = text(n)
		case hasClass(n, "result__snippet"):
			r.Snippet = text(n)
		}
		return false
	})
	return r
}

// unwrapRedirect turns DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links
// into the target URL.
func unwrapRedirect(raw string) string {
	if !strings.Contains(raw, "duckduckgo.com/l/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

// walk visits n and its descendants depth first. visit returns false to
// skip a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text is the node's visible text with whitespace collapsed.
func text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}
