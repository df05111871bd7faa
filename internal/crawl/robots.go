package crawl

import (
	"context"
	"fmt"
	"net/url"

	"github.com/temoto/robotstxt"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
)

// checkRobots fetches and parses robots.txt for the start URL's origin.
// A wildcard-agent disallow of "/" marks the crawl as not allowed; any
// fetch or parse failure is recorded but treated as allowed.
func (c *Crawler) checkRobots(ctx context.Context, startURL string, budget *fetch.Budget) branding.RobotsReport {
	origin, err := urlOrigin(startURL)
	if err != nil {
		return branding.RobotsReport{Checked: false, Allowed: true, Reason: "start URL unparsable"}
	}
	result, err := c.fetcher.Get(ctx, origin+"/robots.txt", fetch.Options{
		MaxBytes: 200 << 10,
		Budget:   budget,
	})
	if err != nil {
		return branding.RobotsReport{Checked: false, Allowed: true, Reason: "robots.txt fetch failed"}
	}
	if len(result.Body) == 0 {
		return branding.RobotsReport{Checked: true, Allowed: true, Reason: "robots.txt empty"}
	}
	data, err := robotstxt.FromStatusAndBytes(result.StatusCode, result.Body)
	if err != nil {
		return branding.RobotsReport{Checked: false, Allowed: true, Reason: "robots.txt unparsable"}
	}
	group := data.FindGroup("*")
	if group == nil {
		return branding.RobotsReport{Checked: true, Allowed: true, Reason: "no rules for user-agent *"}
	}
	if !group.Test("/") {
		return branding.RobotsReport{Checked: true, Allowed: false, Reason: "disallow / for user-agent *"}
	}
	return branding.RobotsReport{Checked: true, Allowed: true, Reason: "allowed by robots.txt"}
}

// termsPaths are probed in order; at most two found pages are recorded.
var termsPaths = []string{
	"/terms",
	"/terms-of-service",
	"/terms-of-use",
	"/legal",
	"/privacy",
	"/policies/terms",
}

// checkTerms probes the well-known terms-of-service paths. Informational
// only; failures never block the crawl.
func (c *Crawler) checkTerms(ctx context.Context, startURL string, budget *fetch.Budget) branding.TermsReport {
	origin, err := urlOrigin(startURL)
	if err != nil {
		return branding.TermsReport{Checked: false, Reason: "start URL unparsable"}
	}
	var found []string
	for _, path := range termsPaths {
		if len(found) >= 2 {
			break
		}
		result, err := c.fetcher.Get(ctx, origin+path, fetch.Options{
			MaxBytes: 200 << 10,
			Budget:   budget,
		})
		if err != nil || len(result.Body) == 0 {
			continue
		}
		found = append(found, origin+path)
	}
	if len(found) > 0 {
		return branding.TermsReport{Checked: true, Found: true, URLs: found, Reason: "terms page reachable"}
	}
	return branding.TermsReport{Checked: true, Found: false, Reason: "terms page not found"}
}

func urlOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
