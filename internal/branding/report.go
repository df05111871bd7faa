package branding

import "time"

// CrawlReport is the per-run artifact produced by the site crawler.
// It is written to blob storage but never stored as a queryable entity.
type CrawlReport struct {
	StartURL        string           `json:"start_url"`
	Visited         []string         `json:"visited"`
	Skipped         []string         `json:"skipped"`
	ImageCandidates []ImageCandidate `json:"image_candidates"`
	CSSURLs         []string         `json:"css_urls"`
	InlineStyles    []string         `json:"inline_styles"`
	Notes           []string         `json:"notes"`
	Robots          RobotsReport     `json:"robots"`
	Terms           TermsReport      `json:"terms"`
	Limits          CrawlLimits      `json:"limits"`
	BytesDownloaded int64            `json:"bytes_downloaded"`
	Duration        time.Duration    `json:"duration_ms"`
	LogoDecision    *LogoDecision    `json:"logo_decision,omitempty"`
}

// RobotsReport records the outcome of the robots.txt policy check.
type RobotsReport struct {
	Checked bool   `json:"checked"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// TermsReport records the best-effort terms-of-service probe. Informational
// only; it never blocks the crawl.
type TermsReport struct {
	Checked bool     `json:"checked"`
	Found   bool     `json:"found"`
	URLs    []string `json:"urls"`
	Reason  string   `json:"reason"`
}

// CrawlLimits echoes the caps actually applied to the run.
type CrawlLimits struct {
	MaxPages     int   `json:"max_pages"`
	MaxImages    int   `json:"max_images"`
	MaxBytes     int64 `json:"max_bytes"`
	MaxPageBytes int64 `json:"max_page_bytes"`
	MaxAssetBytes int64 `json:"max_asset_bytes"`
	MaxCSSFiles  int   `json:"max_css_files"`
}

// ImageCandidate is one image discovered during the crawl, consumed by the
// logo selector.
type ImageCandidate struct {
	URL          string   `json:"url"`
	SourceURL    string   `json:"source_url"`
	AltText      string   `json:"alt_text,omitempty"`
	Context      string   `json:"context,omitempty"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	FileNameHint string   `json:"file_name_hint,omitempty"`
	Hints        []string `json:"hints,omitempty"`
}

// LogoAnalysis holds the pixel-level measurements for a candidate.
type LogoAnalysis struct {
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
	Entropy     float64 `json:"entropy,omitempty"`
	EdgeDensity float64 `json:"edge_density,omitempty"`
	AlphaRatio  float64 `json:"alpha_ratio,omitempty"`
}

// LogoScore is a ranked candidate with its accumulated evidence.
type LogoScore struct {
	URL      string        `json:"url"`
	Score    float64       `json:"score"`
	Reasons  []string      `json:"reasons"`
	BlobPath string        `json:"blob_path,omitempty"`
	BlobURL  string        `json:"blob_url,omitempty"`
	Digest   string        `json:"digest,omitempty"`
	Analysis *LogoAnalysis `json:"analysis,omitempty"`
}

// LogoDecision is the selection summary embedded into the crawl report.
type LogoDecision struct {
	SelectedURL string        `json:"selected_url"`
	Score       float64       `json:"score"`
	Reasons     []string      `json:"reasons"`
	Analysis    *LogoAnalysis `json:"analysis,omitempty"`
}
