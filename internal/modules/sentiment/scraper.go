package sentiment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// minHeadlineRunes is the shortest text accepted as a headline (exclusive)
const minHeadlineRunes = 10

// Source describes one news search page and how to find headlines on it
type Source struct {
	Name    string
	URL     string   // fmt pattern with one %s for the symbol
	Tags    []string // element names that may carry a headline
	Classes []string // any of these class tokens marks a headline
}

// CafeF returns the CafeF search page source
func CafeF(pattern string) Source {
	return Source{
		Name:    "cafef",
		URL:     pattern,
		Tags:    []string{"h3", "h4", "a"},
		Classes: []string{"title", "news-title"},
	}
}

// VnExpress returns the VnExpress search page source
func VnExpress(pattern string) Source {
	return Source{
		Name:    "vnexpress",
		URL:     pattern,
		Tags:    []string{"h3", "h2"},
		Classes: []string{"title-news"},
	}
}

// Scraper collects headlines from the configured sources. Requests are paced
// by a shared limiter so consecutive sources are at least one pause apart.
type Scraper struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	sources   []Source
	log       zerolog.Logger
}

// NewScraper creates a scraper. pause is the minimum gap between requests;
// zero disables pacing.
func NewScraper(sources []Source, userAgent string, timeout, pause time.Duration, log zerolog.Logger) *Scraper {
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: userAgent,
		sources:   sources,
		log:       log.With().Str("component", "news-scraper").Logger(),
	}
}

// Headlines returns up to max headlines for symbol, split evenly across
// sources. A failing source contributes nothing.
func (s *Scraper) Headlines(ctx context.Context, symbol string, max int) []string {
	if len(s.sources) == 0 || max <= 0 {
		return nil
	}
	perSource := max / len(s.sources)
	if perSource == 0 {
		perSource = 1
	}

	var all []string
	for _, src := range s.sources {
		headlines, err := s.scrape(ctx, src, symbol, perSource)
		if err != nil {
			s.log.Warn().Err(err).Str("source", src.Name).Str("symbol", symbol).Msg("Scraping failed")
			continue
		}
		s.log.Debug().Str("source", src.Name).Int("count", len(headlines)).Msg("Scraped headlines")
		all = append(all, headlines...)
	}
	return all
}

func (s *Scraper) scrape(ctx context.Context, src Source, symbol string, limit int) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := fmt.Sprintf(src.URL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s returned status %d", src.Name, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s page: %w", src.Name, err)
	}

	return ExtractHeadlines(doc, src, limit), nil
}

// ExtractHeadlines walks doc in document order, takes the first limit
// elements matching src, and keeps those whose text is long enough.
func ExtractHeadlines(doc *html.Node, src Source, limit int) []string {
	var matched []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(matched) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasAny(n.Data, src.Tags) && hasClass(n, src.Classes) {
			matched = append(matched, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	headlines := make([]string, 0, len(matched))
	for _, n := range matched {
		text := strings.Join(strings.Fields(textOf(n)), " ")
		if utf8.RuneCountInString(text) > minHeadlineRunes {
			headlines = append(headlines, text)
		}
	}
	return headlines
}

func hasAny(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, classes []string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, token := range strings.Fields(attr.Val) {
			if hasAny(token, classes) {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
		b.WriteString(" ")
	}
	return b.String()
}
