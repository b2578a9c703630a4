package advisory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/wolfman30/intake-agent/pkg/logging"
)

const (
	defaultSearchURL = "https://html.duckduckgo.com/html/"
	searchUserAgent  = "Mozilla/5.0 (compatible; intake-agent/1.0)"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web query.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// DuckDuckGo scrapes DuckDuckGo's HTML-only results page.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// SearchOption is a functional option for configuring DuckDuckGo.
type SearchOption func(*DuckDuckGo)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SearchOption {
	return func(d *DuckDuckGo) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) SearchOption {
	return func(d *DuckDuckGo) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDuckDuckGo creates a search client. A blank baseURL uses the public endpoint.
func NewDuckDuckGo(baseURL string, opts ...SearchOption) *DuckDuckGo {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultSearchURL
	}
	d := &DuckDuckGo{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Search returns at most max organic results for query. Ads are skipped.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("advisory: parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("advisory: create search request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisory: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("advisory: search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	results, err := parseResults(resp.Body, max)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("search completed", "query", query, "results", len(results))
	return results, nil
}

// parseResults reads DuckDuckGo result blocks: a.result__a carries the title
// and link, .result__snippet the summary.
func parseResults(r io.Reader, max int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("advisory: parse search html: %w", err)
	}

	results := []Result{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if max > 0 && len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if !hasClass(n, "result--ad") {
				if res, ok := readResult(n); ok {
					results = append(results, res)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func readResult(block *html.Node) (Result, bool) {
	var res Result
	if a := findByClass(block, "result__a"); a != nil {
		res.Title = textContent(a)
		res.Link = resolveLink(attr(a, "href"))
	}
	if s := findByClass(block, "result__snippet"); s != nil {
		res.Snippet = textContent(s)
	}
	return res, res.Title != "" && res.Link != ""
}

// resolveLink unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

func findByClass(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasClass(c, class) {
			return c
		}
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
