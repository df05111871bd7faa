// Package orchestrator sequences the branding pipeline for one job: each
// activity runs strictly in order, every stage transition is checkpointed to
// the job store, and failures funnel through one classification step before
// the terminal failed write.
package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/design"
	"github.com/berginj/glovebrand/internal/fetch"
	"github.com/berginj/glovebrand/internal/metrics"
	"github.com/berginj/glovebrand/internal/palette"
)

// Config bounds the coordinator's retries and the shared byte budget for
// asset fetches after the crawl.
type Config struct {
	AssetBudgetBytes int64       `mapstructure:"asset_budget_bytes" yaml:"asset_budget_bytes"`
	Network          RetryPolicy `mapstructure:"network_retry" yaml:"network_retry"`
	Storage          RetryPolicy `mapstructure:"storage_retry" yaml:"storage_retry"`
}

// DefaultConfig returns the production coordinator settings.
func DefaultConfig() Config {
	return Config{
		AssetBudgetBytes: 25 << 20,
		Network:          NetworkRetryPolicy(),
		Storage:          StorageRetryPolicy(),
	}
}

// URLValidator normalizes and safety-checks the submitted team URL.
type URLValidator interface {
	Validate(ctx context.Context, raw string) (string, error)
}

// SiteCrawler produces the crawl report for a start URL.
type SiteCrawler interface {
	Crawl(ctx context.Context, startURL string) (branding.CrawlReport, error)
}

// LogoSelector ranks candidates and stores the winning logo.
type LogoSelector interface {
	Select(ctx context.Context, jobID string, report branding.CrawlReport, budget *fetch.Budget) (branding.LogoScore, error)
}

// PaletteExtractor derives the palette from logo pixels and site CSS.
type PaletteExtractor interface {
	Extract(ctx context.Context, input palette.Input, budget *fetch.Budget) branding.Palette
}

// WizardRunner attempts third-party wizard autofill. Never auto-retried:
// repeating automation against a live form could cause duplicate side
// effects.
type WizardRunner interface {
	Run(ctx context.Context, jobID string, design branding.Design) (branding.WizardResult, error)
}

// Coordinator executes the job state machine.
type Coordinator struct {
	cfg       Config
	validator URLValidator
	crawler   SiteCrawler
	logos     LogoSelector
	colors    PaletteExtractor
	wizard    WizardRunner
	outputs   *OutputWriter
	store     branding.JobStore
	ids       branding.IDGenerator
	logger    *zap.Logger
}

// New wires a coordinator. wizard may be nil to disable autofill entirely.
func New(
	cfg Config,
	validator URLValidator,
	crawler SiteCrawler,
	logos LogoSelector,
	colors PaletteExtractor,
	wizard WizardRunner,
	outputs *OutputWriter,
	store branding.JobStore,
	ids branding.IDGenerator,
	logger *zap.Logger,
) *Coordinator {
	if cfg.AssetBudgetBytes <= 0 {
		cfg.AssetBudgetBytes = 25 << 20
	}
	if cfg.Network.MaxAttempts == 0 {
		cfg.Network = NetworkRetryPolicy()
	}
	if cfg.Storage.MaxAttempts == 0 {
		cfg.Storage = StorageRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		validator: validator,
		crawler:   crawler,
		logos:     logos,
		colors:    colors,
		wizard:    wizard,
		outputs:   outputs,
		store:     store,
		ids:       ids,
		logger:    logger,
	}
}

// Run executes the pipeline for one queue message. Messages for unknown or
// already-terminal jobs are dropped without error so the queue can ack them.
func (c *Coordinator) Run(ctx context.Context, msg branding.Message) error {
	log := c.logger.With(zap.String("job_id", msg.JobID))

	var job branding.Job
	err := c.cfg.Storage.Do(ctx, log, "load-job", func(ctx context.Context) error {
		var getErr error
		job, getErr = c.store.Get(ctx, msg.JobID)
		return getErr
	})
	if err != nil {
		if errors.Is(err, branding.ErrJobNotFound) {
			log.Warn("dropping message for unknown job")
			return nil
		}
		return c.fail(ctx, msg.JobID, "load-job", err)
	}
	if job.Stage.Terminal() {
		log.Info("dropping message for terminal job", zap.String("stage", string(job.Stage)))
		return nil
	}

	instanceID := ""
	if c.ids != nil {
		if id, idErr := c.ids.NewID(); idErr == nil {
			instanceID = id
		}
	}

	normalized, err := c.validate(ctx, log, job.TeamURL)
	if err != nil {
		return c.fail(ctx, job.ID, "validate", err)
	}
	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageValidated, branding.StageUpdate{InstanceID: instanceID}); done || err != nil {
		return err
	}

	report, err := c.crawl(ctx, log, normalized)
	if err != nil {
		return c.fail(ctx, job.ID, "crawl", err)
	}
	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageCrawled, branding.StageUpdate{}); done || err != nil {
		return err
	}

	budget := fetch.NewBudget(c.cfg.AssetBudgetBytes)

	logo, err := c.selectLogo(ctx, log, job.ID, report, budget)
	if err != nil {
		return c.fail(ctx, job.ID, "select-logo", err)
	}
	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageLogoSelected, branding.StageUpdate{}); done || err != nil {
		return err
	}

	pal := c.colors.Extract(ctx, palette.Input{
		LogoURL:      logo.URL,
		CSSURLs:      report.CSSURLs,
		InlineStyles: report.InlineStyles,
	}, budget)
	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageColorsExtracted, branding.StageUpdate{}); done || err != nil {
		return err
	}

	dsn := design.Generate(job.ID, normalized, logo.URL, logo.BlobPath, pal)
	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageDesignGenerated, branding.StageUpdate{}); done || err != nil {
		return err
	}

	outs, err := c.writeOutputs(ctx, log, job.ID, report, logo, pal, dsn, nil)
	if err != nil {
		return c.fail(ctx, job.ID, "write-outputs", err)
	}

	update := branding.StageUpdate{Outputs: &outs}
	if job.Mode == branding.ModeAutofill && c.wizard != nil {
		if done, err := c.checkpoint(ctx, log, job.ID, branding.StageWizardAttempted, branding.StageUpdate{Outputs: &outs}); done || err != nil {
			return err
		}
		wres, werr := c.wizard.Run(ctx, job.ID, dsn)
		if werr != nil {
			// Only a canceled context surfaces here; automation failures
			// degrade inside the runner.
			return werr
		}
		if wres.AutofillSucceeded {
			metrics.ObserveWizard("succeeded")
		} else {
			metrics.ObserveWizard("fallback")
		}
		outs, err = c.writeOutputs(ctx, log, job.ID, report, logo, pal, dsn, &wres)
		if err != nil {
			return c.fail(ctx, job.ID, "write-outputs", err)
		}
		update = branding.StageUpdate{
			Outputs:           &outs,
			AutofillAttempted: &wres.AutofillAttempted,
			AutofillSucceeded: &wres.AutofillSucceeded,
			WizardWarnings:    wres.Warnings,
		}
	}

	if done, err := c.checkpoint(ctx, log, job.ID, branding.StageCompleted, update); done || err != nil {
		return err
	}
	metrics.ObserveJob(string(branding.StageCompleted))
	log.Info("job completed", zap.String("team_url", normalized))
	return nil
}

func (c *Coordinator) validate(ctx context.Context, log *zap.Logger, rawURL string) (string, error) {
	var normalized string
	err := c.cfg.Network.Do(ctx, log, "validate", func(ctx context.Context) error {
		var vErr error
		normalized, vErr = c.validator.Validate(ctx, rawURL)
		return vErr
	})
	return normalized, err
}

func (c *Coordinator) crawl(ctx context.Context, log *zap.Logger, startURL string) (branding.CrawlReport, error) {
	var report branding.CrawlReport
	err := c.cfg.Network.Do(ctx, log, "crawl", func(ctx context.Context) error {
		var cErr error
		report, cErr = c.crawler.Crawl(ctx, startURL)
		return cErr
	})
	return report, err
}

func (c *Coordinator) selectLogo(ctx context.Context, log *zap.Logger, jobID string, report branding.CrawlReport, budget *fetch.Budget) (branding.LogoScore, error) {
	var logo branding.LogoScore
	err := c.cfg.Network.Do(ctx, log, "select-logo", func(ctx context.Context) error {
		var sErr error
		logo, sErr = c.logos.Select(ctx, jobID, report, budget)
		return sErr
	})
	return logo, err
}

func (c *Coordinator) writeOutputs(
	ctx context.Context,
	log *zap.Logger,
	jobID string,
	report branding.CrawlReport,
	logo branding.LogoScore,
	pal branding.Palette,
	dsn branding.Design,
	wres *branding.WizardResult,
) (branding.Outputs, error) {
	var outs branding.Outputs
	err := c.cfg.Storage.Do(ctx, log, "write-outputs", func(ctx context.Context) error {
		var wErr error
		outs, wErr = c.outputs.WriteAll(ctx, jobID, report, logo, pal, dsn, wres)
		return wErr
	})
	return outs, err
}

// checkpoint writes one stage transition with the storage retry policy.
// done=true means the run should stop without error: the job reached a
// terminal stage elsewhere (cancel race) and must not be overwritten.
func (c *Coordinator) checkpoint(ctx context.Context, log *zap.Logger, jobID string, stage branding.Stage, update branding.StageUpdate) (bool, error) {
	err := c.cfg.Storage.Do(ctx, log, "checkpoint "+string(stage), func(ctx context.Context) error {
		return c.store.UpdateStage(ctx, jobID, stage, update)
	})
	switch {
	case err == nil:
		metrics.ObserveStage(string(stage))
		return false, nil
	case errors.Is(err, branding.ErrTerminalStage):
		log.Info("checkpoint skipped: job already terminal", zap.String("stage", string(stage)))
		return true, nil
	default:
		return false, c.fail(ctx, jobID, "checkpoint", err)
	}
}

// fail classifies the error, best-effort persists the terminal failed
// checkpoint, and returns the original cause either way.
func (c *Coordinator) fail(ctx context.Context, jobID, activity string, cause error) error {
	msg := Classify(activity, cause)
	update := branding.StageUpdate{Error: msg, ErrorDetails: cause.Error()}
	err := c.cfg.Storage.Do(ctx, c.logger, "checkpoint failed", func(ctx context.Context) error {
		return c.store.UpdateStage(ctx, jobID, branding.StageFailed, update)
	})
	if err != nil && !errors.Is(err, branding.ErrTerminalStage) {
		c.logger.Error("terminal failed checkpoint could not be written",
			zap.String("job_id", jobID),
			zap.String("activity", activity),
			zap.Error(err))
	}
	metrics.ObserveJob(string(branding.StageFailed))
	c.logger.Warn("job failed",
		zap.String("job_id", jobID),
		zap.String("activity", activity),
		zap.String("user_error", msg),
		zap.Error(cause))
	return cause
}
