package logo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/fetch"
	"github.com/berginj/glovebrand/internal/safeurl"
	storagemem "github.com/berginj/glovebrand/internal/storage/memory"
)

func newTestSelector(t *testing.T, blobs branding.BlobStore) *Selector {
	t.Helper()
	v := safeurl.New(nil, safeurl.Config{AllowPrivate: true})
	f := fetch.New(v, fetch.Config{MaxRetries: 0, RetryBackoff: 1}, nil)
	return New(f, blobs, DefaultConfig(), nil)
}

// flatPNG renders a solid square with a transparent border, the shape a
// typical rasterized logo takes.
func flatPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 8 || x >= 56 || y < 8 || y >= 56 {
				img.SetNRGBA(x, y, color.NRGBA{})
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSelect_PersistsWinnerToBlobStore(t *testing.T) {
	t.Parallel()

	logoBytes := flatPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".png") {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(logoBytes)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	blobs := storagemem.New()
	s := newTestSelector(t, blobs)

	report := branding.CrawlReport{
		StartURL: server.URL,
		ImageCandidates: []branding.ImageCandidate{
			{URL: server.URL + "/img/team-logo.png", Context: "header", Hints: []string{"logo"}, Width: 200, Height: 200},
			{URL: server.URL + "/img/other.png", Context: "main"},
		},
	}
	score, err := s.Select(context.Background(), "job-1", report, fetch.NewBudget(25<<20))
	require.NoError(t, err)
	require.Equal(t, server.URL+"/img/team-logo.png", score.URL)
	require.Equal(t, "jobs/job-1/logo.png", score.BlobPath)

	stored, err := blobs.Get(context.Background(), "jobs/job-1/logo.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", stored.ContentType)
	require.Equal(t, logoBytes, stored.Data)
}

func TestSelect_TransparencyRewardAppliedFromPixels(t *testing.T) {
	t.Parallel()

	logoBytes := flatPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(logoBytes)
	}))
	defer server.Close()

	s := newTestSelector(t, storagemem.New())
	report := branding.CrawlReport{
		StartURL: server.URL,
		ImageCandidates: []branding.ImageCandidate{
			{URL: server.URL + "/logo.png", Context: "header", Hints: []string{"logo"}},
		},
	}
	score, err := s.Select(context.Background(), "job-2", report, fetch.NewBudget(25<<20))
	require.NoError(t, err)
	require.NotNil(t, score.Analysis)
	require.Greater(t, score.Analysis.AlphaRatio, 0.05)
	require.Contains(t, score.Reasons, "Transparency suggests logo")
}

func TestSelect_NoCandidatesStoresDeterministicPlaceholder(t *testing.T) {
	t.Parallel()

	blobs := storagemem.New()
	s := newTestSelector(t, blobs)

	report := branding.CrawlReport{StartURL: "https://hawks.example.com"}
	score, err := s.Select(context.Background(), "job-3", report, fetch.NewBudget(25<<20))
	require.NoError(t, err)
	require.Equal(t, "jobs/job-3/logo.png", score.BlobPath)
	require.Contains(t, score.Reasons[0], "placeholder")

	first, err := blobs.Get(context.Background(), "jobs/job-3/logo.png")
	require.NoError(t, err)

	// Same hostname must yield identical bytes on every run.
	again, err := Placeholder("https://hawks.example.com")
	require.NoError(t, err)
	require.Equal(t, first.Data, again)

	other, err := Placeholder("https://eagles.example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Data, other)
}

func TestSelect_FetchFailureFallsBackToHeuristicScore(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := newTestSelector(t, storagemem.New())
	report := branding.CrawlReport{
		StartURL: server.URL,
		ImageCandidates: []branding.ImageCandidate{
			{URL: server.URL + "/logo.png", Context: "header", Hints: []string{"logo"}},
		},
	}
	score, err := s.Select(context.Background(), "job-4", report, fetch.NewBudget(25<<20))
	require.NoError(t, err)
	require.Empty(t, score.BlobPath)
	require.Contains(t, score.Reasons, "Pixel analysis skipped: fetch failed")
	require.Contains(t, score.Reasons, "Logo bytes unavailable; artifact not stored")
}

func TestAnalyze_UndecodableBytesUseFallback(t *testing.T) {
	t.Parallel()

	analysis := Analyze([]byte("<svg xmlns='http://www.w3.org/2000/svg'/>"))
	require.Equal(t, 0.3, analysis.Entropy)
	require.Equal(t, 0.3, analysis.EdgeDensity)
	require.Equal(t, 0.5, analysis.AlphaRatio)
}
