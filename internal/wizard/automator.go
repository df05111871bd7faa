// Package wizard automates the third-party glove configuration wizard with
// a headless browser. Every failure path degrades to a schema snapshot plus
// manual fallback steps; the automator never fails the pipeline.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
)

// Config controls the wizard automator.
type Config struct {
	// TargetURL is the external wizard page.
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`
	// NavigationTimeout bounds the whole browser session.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// MinConfidence is the average mapping confidence below which autofill
	// is aborted in favor of manual steps.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	UserAgent     string  `mapstructure:"user_agent" yaml:"user_agent"`
}

// DefaultConfig returns the production automator settings.
func DefaultConfig() Config {
	return Config{
		TargetURL:         "https://bc2gloves.com/cart",
		NavigationTimeout: 45 * time.Second,
		MinConfidence:     0.55,
	}
}

// ArtifactStore is the blob access the automator needs: writes for its own
// artifacts plus reads for the previously stored logo.
type ArtifactStore interface {
	branding.BlobStore
	Get(ctx context.Context, path string) ([]byte, error)
}

// blockKeywords in the rendered page text indicate a challenge or login wall.
var blockKeywords = []string{
	"captcha", "challenge", "verify you are human", "access denied",
	"log in", "login", "sign in", "blocked",
}

// Automator drives a headless Chrome session against the wizard page.
type Automator struct {
	cfg         Config
	blobs       ArtifactStore
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates an automator holding a shared browser allocator.
func New(cfg Config, blobs ArtifactStore, logger *zap.Logger) (*Automator, error) {
	if strings.TrimSpace(cfg.TargetURL) == "" {
		return nil, fmt.Errorf("target URL is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.55
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Automator{
		cfg:         cfg,
		blobs:       blobs,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (a *Automator) Close() {
	a.allocCancel()
}

// schemaSnapshot is the audit artifact captured on every run.
type schemaSnapshot struct {
	CapturedAt time.Time     `json:"captured_at"`
	TargetURL  string        `json:"target_url"`
	Fields     []SelectField `json:"fields"`
	Plans      []FieldPlan   `json:"plans,omitempty"`
	Blocked    string        `json:"blocked,omitempty"`
	Aborted    string        `json:"aborted,omitempty"`
}

// Run attempts to autofill the wizard with the design's palette. It always
// returns a usable result; the error return is reserved for a canceled
// context.
func (a *Automator) Run(ctx context.Context, jobID string, design branding.Design) (branding.WizardResult, error) {
	res := branding.WizardResult{AutofillAttempted: true, Warnings: []string{}}
	snap := schemaSnapshot{CapturedAt: time.Now().UTC(), TargetURL: a.cfg.TargetURL}

	taskCtx, taskCancel := chromedp.NewContext(a.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, a.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pageText string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(a.cfg.TargetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Text("body", &pageText, chromedp.ByQuery),
		chromedp.Evaluate(selectFieldsJS, &snap.Fields),
	)
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("wizard run canceled: %w", ctx.Err())
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("Wizard page could not be loaded: %v", err))
		return a.fallback(ctx, jobID, design, snap, res), nil
	}

	if reason := blockedReason(pageText); reason != "" {
		snap.Blocked = reason
		res.Warnings = append(res.Warnings, fmt.Sprintf("Wizard appears blocked: %s", reason))
		return a.fallback(ctx, jobID, design, snap, res), nil
	}

	plans, avg := PlanFields(snap.Fields, design.Palette)
	snap.Plans = plans
	res.MappingConfidence = avg
	switch {
	case len(plans) == 0:
		snap.Aborted = "no color fields found"
		res.Warnings = append(res.Warnings, "No color fields found on the wizard page; autofill aborted.")
		return a.fallback(ctx, jobID, design, snap, res), nil
	case avg < a.cfg.MinConfidence:
		snap.Aborted = fmt.Sprintf("mapping confidence %.2f below %.2f", avg, a.cfg.MinConfidence)
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Average mapping confidence %.2f below %.2f; autofill aborted.", avg, a.cfg.MinConfidence))
		return a.fallback(ctx, jobID, design, snap, res), nil
	}

	for _, plan := range plans {
		var matched bool
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(setSelectJS(plan.Field.Index, plan.ColorName), &matched)); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Could not set field %q: %v", fieldLabel(plan.Field), err))
			return a.fallback(ctx, jobID, design, snap, res), nil
		}
		if !matched {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Field %q has no option matching %q; set it manually.", fieldLabel(plan.Field), plan.ColorName))
		}
	}

	a.uploadLogo(taskCtx, ctx, design.LogoPath, &res)

	var shot []byte
	if err := chromedp.Run(taskCtx, chromedp.FullScreenshot(&shot, 90)); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Screenshot capture failed: %v", err))
	} else if loc, putErr := a.blobs.Put(ctx, artifactPath(jobID, "configured.png"), "image/png", shot); putErr != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Screenshot upload failed: %v", putErr))
	} else {
		res.ConfiguredImage = &loc
	}

	res.SchemaSnapshot = a.storeSnapshot(ctx, jobID, snap, &res)
	res.AutofillSucceeded = true
	a.logger.Info("wizard autofill completed",
		zap.String("job_id", jobID),
		zap.Int("fields", len(plans)),
		zap.Float64("confidence", avg),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// fallback finalizes a non-failing result: schema snapshot for audit plus
// manual steps the operator can follow.
func (a *Automator) fallback(ctx context.Context, jobID string, design branding.Design, snap schemaSnapshot, res branding.WizardResult) branding.WizardResult {
	res.AutofillSucceeded = false
	res.ManualSteps = ManualSteps(a.cfg.TargetURL, design.Palette, snap.Plans)
	res.SchemaSnapshot = a.storeSnapshot(ctx, jobID, snap, &res)
	a.logger.Warn("wizard autofill fell back to manual steps",
		zap.String("job_id", jobID),
		zap.Strings("warnings", res.Warnings))
	return res
}

func (a *Automator) storeSnapshot(ctx context.Context, jobID string, snap schemaSnapshot, res *branding.WizardResult) *branding.ArtifactLocation {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Schema snapshot could not be encoded: %v", err))
		return nil
	}
	loc, err := a.blobs.Put(ctx, artifactPath(jobID, "wizard_schema_snapshot.json"), "application/json", data)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Schema snapshot upload failed: %v", err))
		return nil
	}
	return &loc
}

// uploadLogo downloads the stored logo and attaches it to the page's file
// input. A missing input or a download failure is a warning, never fatal.
func (a *Automator) uploadLogo(taskCtx, ctx context.Context, logoPath string, res *branding.WizardResult) {
	if logoPath == "" {
		res.Warnings = append(res.Warnings, "No stored logo to upload.")
		return
	}
	var hasInput bool
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(`document.querySelector("input[type=file]") !== null`, &hasInput)); err != nil || !hasInput {
		res.Warnings = append(res.Warnings, "Wizard page has no file input; upload the logo manually.")
		return
	}
	data, err := a.blobs.Get(ctx, logoPath)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Logo download failed: %v", err))
		return
	}
	tmp, err := os.CreateTemp("", "wizard-logo-*"+filepath.Ext(logoPath))
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Logo temp file failed: %v", err))
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		res.Warnings = append(res.Warnings, fmt.Sprintf("Logo temp file failed: %v", err))
		return
	}
	tmp.Close()
	if err := chromedp.Run(taskCtx, chromedp.SetUploadFiles(`input[type=file]`, []string{tmp.Name()}, chromedp.ByQuery)); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Logo upload failed: %v", err))
	}
}

// blockedReason returns the first block keyword present in the page text.
func blockedReason(pageText string) string {
	text := strings.ToLower(pageText)
	for _, kw := range blockKeywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func fieldLabel(f SelectField) string {
	if f.Label != "" {
		return f.Label
	}
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("select #%d", f.Index)
}

func artifactPath(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}

// selectFieldsJS enumerates all selects with their labels and option texts.
const selectFieldsJS = `Array.from(document.querySelectorAll("select")).map(function(sel, i) {
  var label = "";
  if (sel.labels && sel.labels.length > 0) {
    label = sel.labels[0].innerText.trim();
  } else if (sel.closest("label")) {
    label = sel.closest("label").innerText.trim();
  }
  return {
    index: i,
    name: sel.name || sel.id || "",
    label: label,
    options: Array.from(sel.options).map(function(o) { return o.text.trim(); })
  };
})`

// setSelectJS picks the first option whose text contains the wanted color
// name and fires a change event, reporting whether anything matched.
func setSelectJS(index int, colorName string) string {
	return fmt.Sprintf(`(function(i, want) {
  var sel = document.querySelectorAll("select")[i];
  if (!sel) { return false; }
  want = want.toLowerCase();
  for (var j = 0; j < sel.options.length; j++) {
    if (sel.options[j].text.toLowerCase().indexOf(want) !== -1) {
      sel.selectedIndex = j;
      sel.dispatchEvent(new Event("change", {bubbles: true}));
      return true;
    }
  }
  return false;
})(%d, %q)`, index, colorName)
}
