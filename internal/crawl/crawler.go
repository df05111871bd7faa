// Package crawl implements the bounded, single-domain site crawl that feeds
// the logo selector and palette extractor. Traversal is an explicit
// worklist loop with a visited set; the shared byte budget and the SSRF
// validator (inside the fetcher) gate every request.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
	"github.com/berginj/glovebrand/internal/metrics"
)

// Config bounds one crawl run. Decoupled from viper so the crawler is
// testable with explicit limits.
type Config struct {
	MaxPages      int
	MaxImages     int
	MaxBytes      int64
	MaxPageBytes  int64
	MaxAssetBytes int64
	MaxCSSFiles   int
	RequestDelay  time.Duration
	WallClock     time.Duration
}

// DefaultConfig mirrors the production limits.
func DefaultConfig() Config {
	return Config{
		MaxPages:      3,
		MaxImages:     30,
		MaxBytes:      25 << 20,
		MaxPageBytes:  2 << 20,
		MaxAssetBytes: 5 << 20,
		MaxCSSFiles:   4,
		RequestDelay:  150 * time.Millisecond,
		WallClock:     2 * time.Minute,
	}
}

// Crawler walks a site breadth-first under the configured caps.
type Crawler struct {
	fetcher *fetch.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Crawler.
func New(fetcher *fetch.Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, cfg: cfg, logger: logger}
}

// linkAllowlist bounds traversal to pages likely to carry brand assets.
var linkAllowlist = regexp.MustCompile(`(?i)about|team|club|baseball|home|program|organization|brand`)

var cssURLPattern = regexp.MustCompile(`(?i)url\(['"]?(.*?)['"]?\)`)

// state accumulates one run's findings.
type state struct {
	report     branding.CrawlReport
	seenPages  map[string]struct{}
	seenImages map[string]struct{}
	seenCSS    map[string]struct{}
	budget     *fetch.Budget
}

// Crawl walks the site from startURL and returns the crawl report. A robots
// disallow-all yields an empty report with an explanatory note, not an
// error; individual page failures are recorded as skipped.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (branding.CrawlReport, error) {
	if c.cfg.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WallClock)
		defer cancel()
	}
	started := time.Now()
	st := &state{
		report: branding.CrawlReport{
			StartURL: startURL,
			Limits: branding.CrawlLimits{
				MaxPages:      c.cfg.MaxPages,
				MaxImages:     c.cfg.MaxImages,
				MaxBytes:      c.cfg.MaxBytes,
				MaxPageBytes:  c.cfg.MaxPageBytes,
				MaxAssetBytes: c.cfg.MaxAssetBytes,
				MaxCSSFiles:   c.cfg.MaxCSSFiles,
			},
		},
		seenPages:  make(map[string]struct{}),
		seenImages: make(map[string]struct{}),
		seenCSS:    make(map[string]struct{}),
		budget:     fetch.NewBudget(c.cfg.MaxBytes),
	}

	st.report.Robots = c.checkRobots(ctx, startURL, st.budget)
	st.report.Terms = c.checkTerms(ctx, startURL, st.budget)
	if st.report.Terms.Found {
		st.note("Terms page found: %s", strings.Join(st.report.Terms.URLs, ", "))
	} else {
		st.note("Terms check: %s", st.report.Terms.Reason)
	}
	if !st.report.Robots.Allowed {
		st.note("robots.txt disallows crawling (%s). Proposal-only mode recommended.", st.report.Robots.Reason)
		st.report.BytesDownloaded = st.budget.Used()
		st.report.Duration = time.Since(started)
		return st.report, nil
	}

	worklist := []string{startURL}
	for len(worklist) > 0 && len(st.report.Visited) < c.cfg.MaxPages && len(st.report.ImageCandidates) < c.cfg.MaxImages {
		if ctx.Err() != nil {
			st.note("Crawl wall clock exhausted.")
			break
		}
		current := worklist[0]
		worklist = worklist[1:]
		if _, seen := st.seenPages[current]; seen {
			continue
		}
		st.seenPages[current] = struct{}{}
		if c.cfg.RequestDelay > 0 && len(st.report.Visited) > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RequestDelay):
			}
		}
		links, err := c.visitPage(ctx, st, current, startURL)
		if err != nil {
			st.report.Skipped = append(st.report.Skipped, current)
			c.logger.Warn("page crawl failed", zap.String("url", current), zap.Error(err))
			continue
		}
		for _, link := range links {
			if len(worklist)+len(st.report.Visited) >= c.cfg.MaxPages {
				break
			}
			if _, seen := st.seenPages[link]; !seen {
				worklist = append(worklist, link)
			}
		}
	}

	if len(st.report.Visited) >= c.cfg.MaxPages {
		st.note("Page cap reached (%d).", c.cfg.MaxPages)
	}
	if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
		st.note("Image cap reached (%d).", c.cfg.MaxImages)
	}
	if st.budget.Used() >= c.cfg.MaxBytes {
		st.note("Download budget reached (%d bytes).", c.cfg.MaxBytes)
	}
	st.report.BytesDownloaded = st.budget.Used()
	st.report.Duration = time.Since(started)
	return st.report, nil
}

func (c *Crawler) visitPage(ctx context.Context, st *state, pageURL, startURL string) ([]string, error) {
	result, err := c.fetcher.Get(ctx, pageURL, fetch.Options{
		MaxBytes: c.cfg.MaxPageBytes,
		Budget:   st.budget,
	})
	if err != nil {
		metrics.ObserveCrawlPage(pageURL, "error", 0)
		return nil, err
	}
	metrics.ObserveCrawlPage(result.URL, "ok", result.Bytes)
	st.report.Visited = append(st.report.Visited, result.URL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(result.Body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	c.collectImages(st, doc, result.URL)
	c.collectMetaImages(st, doc, result.URL)
	c.collectInlineBackgrounds(st, doc, result.URL)
	c.collectSVGReferences(st, doc, result.URL)
	c.collectInlineStyles(st, doc)
	c.collectStylesheets(st, doc, result.URL)
	c.collectCSSBackgrounds(ctx, st)
	return c.collectLinks(doc, result.URL, startURL), nil
}

func (c *Crawler) collectImages(st *state, doc *goquery.Document, sourceURL string) {
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
			return false
		}
		src, ok := sel.Attr("src")
		if !ok {
			return true
		}
		resolved := resolveURL(sourceURL, src)
		if resolved == "" || st.imageSeen(resolved) {
			return true
		}
		alt := sel.AttrOr("alt", "")
		class := sel.AttrOr("class", "")
		id := sel.AttrOr("id", "")
		placement := ""
		if closest := sel.Closest("header,nav,footer,section,main"); closest.Length() > 0 {
			placement = strings.ToLower(goquery.NodeName(closest))
		}
		st.report.ImageCandidates = append(st.report.ImageCandidates, branding.ImageCandidate{
			URL:          resolved,
			SourceURL:    sourceURL,
			AltText:      alt,
			Context:      placement,
			Width:        intAttr(sel, "width"),
			Height:       intAttr(sel, "height"),
			FileNameHint: fileName(resolved),
			Hints:        collectHints(alt, class, id),
		})
		return true
	})
}

// metaImageSelectors map selector to the hint recorded on the candidate.
var metaImageSelectors = []struct {
	selector string
	name     string
}{
	{"meta[property='og:image'], meta[name='og:image']", "og:image"},
	{"meta[property='twitter:image'], meta[name='twitter:image']", "twitter:image"},
	{"link[rel~='apple-touch-icon']", "apple-touch-icon"},
	{"link[rel~='icon']", "icon"},
}

func (c *Crawler) collectMetaImages(st *state, doc *goquery.Document, sourceURL string) {
	for _, meta := range metaImageSelectors {
		doc.Find(meta.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
				return false
			}
			value := sel.AttrOr("content", sel.AttrOr("href", ""))
			if value == "" {
				return true
			}
			resolved := resolveURL(sourceURL, value)
			if resolved == "" || st.imageSeen(resolved) {
				return true
			}
			st.report.ImageCandidates = append(st.report.ImageCandidates, branding.ImageCandidate{
				URL:          resolved,
				SourceURL:    sourceURL,
				AltText:      meta.name,
				Context:      "meta",
				FileNameHint: fileName(resolved),
				Hints:        append(collectHints(meta.name), meta.name),
			})
			return true
		})
	}
}

func (c *Crawler) collectInlineBackgrounds(st *state, doc *goquery.Document, sourceURL string) {
	doc.Find("[style*='background']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
			return false
		}
		style := sel.AttrOr("style", "")
		for _, match := range cssURLPattern.FindAllStringSubmatch(style, -1) {
			if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
				return false
			}
			resolved := resolveURL(sourceURL, match[1])
			if resolved == "" || st.imageSeen(resolved) {
				continue
			}
			st.report.ImageCandidates = append(st.report.ImageCandidates, branding.ImageCandidate{
				URL:          resolved,
				SourceURL:    sourceURL,
				Context:      "inline-style",
				FileNameHint: fileName(resolved),
				Hints:        collectHints("background-image"),
			})
		}
		return true
	})
}

func (c *Crawler) collectSVGReferences(st *state, doc *goquery.Document, sourceURL string) {
	doc.Find("svg image, svg use").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
			return false
		}
		href := sel.AttrOr("href", sel.AttrOr("xlink:href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		resolved := resolveURL(sourceURL, href)
		if resolved == "" || st.imageSeen(resolved) {
			return true
		}
		st.report.ImageCandidates = append(st.report.ImageCandidates, branding.ImageCandidate{
			URL:          resolved,
			SourceURL:    sourceURL,
			Context:      "svg",
			FileNameHint: fileName(resolved),
			Hints:        collectHints("svg"),
		})
		return true
	})
}

const (
	maxStyleBlocks   = 5
	maxInlineStyles  = 100
	styleBlockLimit  = 10000
)

func (c *Crawler) collectInlineStyles(st *state, doc *goquery.Document) {
	blocks := 0
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		if blocks >= maxStyleBlocks {
			return
		}
		text := sel.Text()
		if text == "" {
			return
		}
		if len(text) > styleBlockLimit {
			text = text[:styleBlockLimit]
		}
		st.report.InlineStyles = append(st.report.InlineStyles, text)
		blocks++
	})
	doc.Find("[style]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(st.report.InlineStyles) >= maxInlineStyles {
			return false
		}
		if style := sel.AttrOr("style", ""); style != "" {
			st.report.InlineStyles = append(st.report.InlineStyles, style)
		}
		return true
	})
}

func (c *Crawler) collectStylesheets(st *state, doc *goquery.Document, sourceURL string) {
	doc.Find("link[rel='stylesheet']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(st.report.CSSURLs) >= c.cfg.MaxCSSFiles {
			return false
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resolved := resolveURL(sourceURL, href)
		if resolved == "" {
			return true
		}
		st.report.CSSURLs = append(st.report.CSSURLs, resolved)
		return true
	})
}

// collectCSSBackgrounds fetches discovered stylesheets (up to the CSS cap)
// and mines them for background URLs that look like brand images.
func (c *Crawler) collectCSSBackgrounds(ctx context.Context, st *state) {
	for _, cssURL := range st.report.CSSURLs {
		if len(st.seenCSS) >= c.cfg.MaxCSSFiles || len(st.report.ImageCandidates) >= c.cfg.MaxImages {
			return
		}
		if _, seen := st.seenCSS[cssURL]; seen {
			continue
		}
		st.seenCSS[cssURL] = struct{}{}
		result, err := c.fetcher.Get(ctx, cssURL, fetch.Options{
			MaxBytes: 300 << 10,
			Budget:   st.budget,
		})
		if err != nil {
			c.logger.Debug("stylesheet fetch failed", zap.String("url", cssURL), zap.Error(err))
			continue
		}
		for _, match := range cssURLPattern.FindAllStringSubmatch(string(result.Body), -1) {
			if len(st.report.ImageCandidates) >= c.cfg.MaxImages {
				return
			}
			resolved := resolveURL(cssURL, match[1])
			if resolved == "" || !isLikelyImage(resolved) || st.imageSeen(resolved) {
				continue
			}
			st.report.ImageCandidates = append(st.report.ImageCandidates, branding.ImageCandidate{
				URL:          resolved,
				SourceURL:    cssURL,
				Context:      "css",
				FileNameHint: fileName(resolved),
				Hints:        collectHints("css-background"),
			})
		}
	}
}

// collectLinks returns same-host links whose path matches the keyword
// allowlist, capped at the page limit.
func (c *Crawler) collectLinks(doc *goquery.Document, sourceURL, startURL string) []string {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if len(links) >= c.cfg.MaxPages {
			return
		}
		href, _ := sel.Attr("href")
		resolved := resolveURL(sourceURL, href)
		if resolved == "" {
			return
		}
		linkURL, err := url.Parse(resolved)
		if err != nil || !strings.EqualFold(linkURL.Hostname(), start.Hostname()) {
			return
		}
		if linkAllowlist.MatchString(linkURL.Path) {
			links = append(links, linkURL.String())
		}
	})
	return links
}

func (st *state) imageSeen(imageURL string) bool {
	if _, seen := st.seenImages[imageURL]; seen {
		return true
	}
	st.seenImages[imageURL] = struct{}{}
	return false
}

func (st *state) note(format string, args ...any) {
	st.report.Notes = append(st.report.Notes, fmt.Sprintf(format, args...))
}

func resolveURL(base, value string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func intAttr(sel *goquery.Selection, name string) int {
	value, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	return parts[len(parts)-1]
}

func collectHints(values ...string) []string {
	seen := make(map[string]struct{})
	var hints []string
	add := func(hint string) {
		if _, ok := seen[hint]; !ok {
			seen[hint] = struct{}{}
			hints = append(hints, hint)
		}
	}
	for _, value := range values {
		normalized := strings.ToLower(value)
		if normalized == "" {
			continue
		}
		for _, kw := range []string{"logo", "brand", "crest", "emblem"} {
			if strings.Contains(normalized, kw) {
				add("logo")
			}
		}
		if strings.Contains(normalized, "header") || strings.Contains(normalized, "nav") {
			add("header")
		}
	}
	return hints
}

func isLikelyImage(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, "logo") || strings.Contains(lower, "brand") {
		return true
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp"} {
		if strings.HasSuffix(strings.SplitN(lower, "?", 2)[0], ext) {
			return true
		}
	}
	return false
}
