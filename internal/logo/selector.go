package logo

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
	"github.com/berginj/glovebrand/internal/hash/sha256"
)

// Config bounds the pixel-analysis pass.
type Config struct {
	TopAnalysis   int
	MaxAssetBytes int64
}

// DefaultConfig analyzes the top five candidates under the 5 MiB asset cap.
func DefaultConfig() Config {
	return Config{TopAnalysis: 5, MaxAssetBytes: 5 << 20}
}

// Selector picks and persists the best logo candidate.
type Selector struct {
	fetcher *fetch.Fetcher
	blobs   branding.BlobStore
	hasher  *sha256.Hasher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Selector.
func New(fetcher *fetch.Fetcher, blobs branding.BlobStore, cfg Config, logger *zap.Logger) *Selector {
	if cfg.TopAnalysis <= 0 {
		cfg.TopAnalysis = 5
	}
	if cfg.MaxAssetBytes <= 0 {
		cfg.MaxAssetBytes = 5 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{fetcher: fetcher, blobs: blobs, hasher: sha256.New(), cfg: cfg, logger: logger}
}

// Select scores the crawl report's candidates, analyzes the leaders, and
// persists the winner to object storage. With no candidates at all it
// stores a deterministic hostname placeholder instead; selection never
// hard-fails for lack of input.
func (s *Selector) Select(ctx context.Context, jobID string, report branding.CrawlReport, budget *fetch.Budget) (branding.LogoScore, error) {
	if len(report.ImageCandidates) == 0 {
		return s.placeholder(ctx, jobID, report.StartURL)
	}

	ranked := rankScores(ScoreCandidates(report.ImageCandidates))
	top := ranked
	if len(top) > s.cfg.TopAnalysis {
		top = top[:s.cfg.TopAnalysis]
	}

	bodies := make(map[string]fetch.Result, len(top))
	adjusted := make([]branding.LogoScore, len(top))
	for i, score := range top {
		result, err := s.fetcher.Get(ctx, score.URL, fetch.Options{
			MaxBytes: s.cfg.MaxAssetBytes,
			Budget:   budget,
		})
		if err != nil {
			score.Reasons = append(score.Reasons, "Pixel analysis skipped: fetch failed")
			adjusted[i] = score
			s.logger.Debug("candidate fetch failed", zap.String("url", score.URL), zap.Error(err))
			continue
		}
		bodies[score.URL] = result
		adjusted[i] = applyAnalysis(score, Analyze(result.Body))
	}

	best := adjusted[0]
	for _, score := range adjusted[1:] {
		if score.Score > best.Score {
			best = score
		}
	}

	result, fetched := bodies[best.URL]
	if !fetched {
		best.Reasons = append(best.Reasons, "Logo bytes unavailable; artifact not stored")
		return best, nil
	}
	location, err := s.blobs.Put(ctx, logoPath(jobID, best.URL), contentTypeFor(best.URL, result.ContentType), result.Body)
	if err != nil {
		return branding.LogoScore{}, branding.NewError(branding.KindInfrastructure, "select-logo", "store logo artifact", err)
	}
	best.BlobPath = location.Path
	best.BlobURL = location.URL
	if digest, err := s.hasher.Hash(result.Body); err == nil {
		best.Digest = digest
	}
	best.Reasons = append(best.Reasons, fmt.Sprintf("Uploaded to %s", location.Path))
	return best, nil
}

func (s *Selector) placeholder(ctx context.Context, jobID, teamURL string) (branding.LogoScore, error) {
	data, err := Placeholder(teamURL)
	if err != nil {
		return branding.LogoScore{}, branding.NewError(branding.KindExtraction, "select-logo", "generate placeholder", err)
	}
	location, err := s.blobs.Put(ctx, fmt.Sprintf("jobs/%s/logo.png", jobID), "image/png", data)
	if err != nil {
		return branding.LogoScore{}, branding.NewError(branding.KindInfrastructure, "select-logo", "store placeholder", err)
	}
	score := branding.LogoScore{
		Score:    0,
		Reasons:  []string{"No image candidates; deterministic placeholder generated from hostname"},
		BlobPath: location.Path,
		BlobURL:  location.URL,
	}
	if digest, err := s.hasher.Hash(data); err == nil {
		score.Digest = digest
	}
	return score, nil
}

// logoPath keys the artifact deterministically so workflow replays
// overwrite rather than duplicate.
func logoPath(jobID, logoURL string) string {
	return fmt.Sprintf("jobs/%s/logo%s", jobID, extensionOf(logoURL))
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".png"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico":
		return ext
	default:
		return ".png"
	}
}

func contentTypeFor(rawURL, fetched string) string {
	if fetched != "" {
		return fetched
	}
	switch extensionOf(rawURL) {
	case ".svg":
		return "image/svg+xml"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".ico":
		return "image/x-icon"
	default:
		return "image/png"
	}
}
