// Package app initializes and holds the long-lived services of the
// branding pipeline, acting as the dependency injection container for the
// serve command.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/api"
	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/clock/system"
	"github.com/berginj/glovebrand/internal/config"
	"github.com/berginj/glovebrand/internal/crawl"
	"github.com/berginj/glovebrand/internal/fetch"
	uuidgen "github.com/berginj/glovebrand/internal/id/uuid"
	"github.com/berginj/glovebrand/internal/logging"
	"github.com/berginj/glovebrand/internal/logo"
	"github.com/berginj/glovebrand/internal/metrics"
	"github.com/berginj/glovebrand/internal/orchestrator"
	"github.com/berginj/glovebrand/internal/palette"
	queuemem "github.com/berginj/glovebrand/internal/queue/memory"
	queuepubsub "github.com/berginj/glovebrand/internal/queue/pubsub"
	"github.com/berginj/glovebrand/internal/safeurl"
	storagegcs "github.com/berginj/glovebrand/internal/storage/gcs"
	storagelocal "github.com/berginj/glovebrand/internal/storage/local"
	storagemem "github.com/berginj/glovebrand/internal/storage/memory"
	storemem "github.com/berginj/glovebrand/internal/store/memory"
	storepostgres "github.com/berginj/glovebrand/internal/store/postgres"
	"github.com/berginj/glovebrand/internal/sweeper"
	"github.com/berginj/glovebrand/internal/wizard"
	"github.com/berginj/glovebrand/internal/worker"
)

// App holds every long-lived service for one process. It is built once at
// startup and torn down by Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	blobs    branding.BlobStore
	store    branding.JobStore
	queue    branding.Queue
	sweeper  *sweeper.Sweeper
	coord    *orchestrator.Coordinator
	workers  []*worker.Worker
	server   *api.Server
	shutdown []func()
}

// New wires all services from the configuration, failing fast if any
// provider cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	blobs, artifacts, err := a.buildStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.blobs = blobs

	if err := a.buildStore(ctx); err != nil {
		return nil, err
	}
	if err := a.buildQueue(ctx); err != nil {
		return nil, err
	}

	validator := safeurl.New(nil, safeurl.Config{AllowPrivate: cfg.Fetch.AllowPrivate})
	fetcher := fetch.New(validator, fetch.Config{
		Timeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryBackoff: time.Duration(cfg.Fetch.BackoffMs) * time.Millisecond,
		UserAgent:    cfg.Fetch.UserAgent,
	}, logger)

	crawler := crawl.New(fetcher, crawl.Config{
		MaxPages:      cfg.Crawl.MaxPages,
		MaxImages:     cfg.Crawl.MaxImages,
		MaxBytes:      cfg.Crawl.MaxBytes,
		MaxPageBytes:  cfg.Crawl.MaxPageBytes,
		MaxAssetBytes: cfg.Crawl.MaxAssetBytes,
		MaxCSSFiles:   cfg.Crawl.MaxCSSFiles,
		RequestDelay:  time.Duration(cfg.Crawl.RequestDelayMs) * time.Millisecond,
		WallClock:     time.Duration(cfg.Crawl.WallClockSeconds) * time.Second,
	}, logger)

	logos := logo.New(fetcher, blobs, logo.Config{
		TopAnalysis:   cfg.Logo.TopAnalysis,
		MaxAssetBytes: cfg.Logo.MaxAssetBytes,
	}, logger)

	paletteCfg := palette.DefaultConfig()
	paletteCfg.CustomPropWeight = cfg.Palette.CustomPropWeight
	paletteCfg.LiteralWeight = cfg.Palette.LiteralWeight
	paletteCfg.LogoWeight = cfg.Palette.LogoWeight
	paletteCfg.LogoFloor = cfg.Palette.LogoFloor
	paletteCfg.Clusters = cfg.Palette.Clusters
	paletteCfg.Iterations = cfg.Palette.Iterations
	paletteCfg.SampleSide = cfg.Palette.SampleSide
	paletteCfg.MergeDistance = cfg.Palette.MergeDistance
	paletteCfg.NeutralSpread = cfg.Palette.NeutralSpread
	paletteCfg.MaxStylesheets = cfg.Palette.MaxStylesheets
	colors := palette.New(fetcher, paletteCfg, logger)

	var wizardRunner orchestrator.WizardRunner
	if cfg.Wizard.Enabled {
		automator, err := wizard.New(wizard.Config{
			TargetURL:         cfg.Wizard.TargetURL,
			NavigationTimeout: time.Duration(cfg.Wizard.NavTimeoutSeconds) * time.Second,
			MinConfidence:     cfg.Wizard.MinConfidence,
			UserAgent:         cfg.Wizard.UserAgent,
		}, artifacts, logger)
		if err != nil {
			return nil, fmt.Errorf("build wizard automator: %w", err)
		}
		a.shutdown = append(a.shutdown, automator.Close)
		wizardRunner = automator
	}

	coordCfg := orchestrator.DefaultConfig()
	coordCfg.AssetBudgetBytes = cfg.Coordinator.AssetBudgetBytes
	coordCfg.Network.MaxAttempts = cfg.Coordinator.NetworkMaxAttempts
	coordCfg.Network.BaseDelay = time.Duration(cfg.Coordinator.NetworkBaseDelayMs) * time.Millisecond
	coordCfg.Network.MaxElapsed = time.Duration(cfg.Coordinator.NetworkMaxElapsedSec) * time.Second
	coordCfg.Storage.MaxAttempts = cfg.Coordinator.StorageMaxAttempts
	coordCfg.Storage.BaseDelay = time.Duration(cfg.Coordinator.StorageBaseDelayMs) * time.Millisecond
	coordCfg.Storage.MaxElapsed = time.Duration(cfg.Coordinator.StorageMaxElapsedSec) * time.Second

	ids := uuidgen.NewUUIDGenerator()
	clk := system.New()
	outputs := orchestrator.NewOutputWriter(blobs)
	a.coord = orchestrator.New(coordCfg, validator, crawler, logos, colors, wizardRunner,
		outputs, a.store, ids, logger)

	a.sweeper = sweeper.New(sweeper.Config{
		Enabled:        cfg.Sweeper.Enabled,
		Schedule:       cfg.Sweeper.Schedule,
		RetryThreshold: time.Duration(cfg.Sweeper.RetryThresholdMin) * time.Minute,
		StallThreshold: time.Duration(cfg.Sweeper.StallThresholdMin) * time.Minute,
		MaxRetries:     cfg.Sweeper.MaxRetries,
		Limit:          cfg.Sweeper.Limit,
	}, a.store, a.queue, clk, logger)

	for i := 0; i < cfg.Coordinator.WorkerCount; i++ {
		a.workers = append(a.workers, worker.New(a.queue, a.coord, logger))
	}

	a.server = api.NewServer(a.store, a.queue, a.sweeper, a.coord, ids, clk, cfg, logger)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.Int("workers", cfg.Coordinator.WorkerCount),
		zap.Bool("wizard", cfg.Wizard.Enabled),
	)
	return a, nil
}

// memoryArtifacts adapts the in-memory blob store to the wizard's
// read-back interface.
type memoryArtifacts struct {
	*storagemem.Store
}

func (m memoryArtifacts) Get(ctx context.Context, path string) ([]byte, error) {
	obj, err := m.Store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (a *App) buildStorage(ctx context.Context) (branding.BlobStore, wizard.ArtifactStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.shutdown = append(a.shutdown, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		bs, err := storagegcs.New(client, storagegcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize gcs storage: %w", err)
		}
		return bs, bs, nil
	case "local":
		bs, err := storagelocal.New(storagelocal.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize local storage: %w", err)
		}
		return bs, bs, nil
	case "memory":
		m := storagemem.New()
		return m, memoryArtifacts{m}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
}

func (a *App) buildStore(ctx context.Context) error {
	clk := system.New()
	switch a.cfg.Store.Provider {
	case "postgres":
		js, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		}, clk)
		if err != nil {
			return fmt.Errorf("initialize postgres job store: %w", err)
		}
		a.shutdown = append(a.shutdown, js.Close)
		a.store = js
	case "memory":
		a.store = storemem.New(clk)
	default:
		return fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) buildQueue(ctx context.Context) error {
	switch a.cfg.Queue.Provider {
	case "pubsub":
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:       a.cfg.Queue.ProjectID,
			TopicID:         a.cfg.Queue.TopicID,
			SubscriptionID:  a.cfg.Queue.SubscriptionID,
			DeadLetterSubID: a.cfg.Queue.DeadLetterSub,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("initialize pubsub queue: %w", err)
		}
		a.shutdown = append(a.shutdown, func() {
			if err := q.Close(); err != nil {
				a.logger.Warn("close pubsub queue", zap.Error(err))
			}
		})
		a.queue = q
	case "memory":
		q := queuemem.New(a.cfg.Queue.Capacity, a.cfg.Queue.MaxDeliveries)
		a.shutdown = append(a.shutdown, q.Close)
		a.queue = q
	default:
		return fmt.Errorf("unknown queue provider: %s", a.cfg.Queue.Provider)
	}
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Sweep runs one reconciliation pass without starting the cron schedule.
func (a *App) Sweep(ctx context.Context) error {
	return a.sweeper.Sweep(ctx)
}

// Run starts the workers, sweeper, and HTTP server, blocking until the
// context is canceled, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, w := range a.workers {
		wg.Add(1)
		go func(i int, w *worker.Worker) {
			defer wg.Done()
			if err := w.Run(runCtx); err != nil {
				a.logger.Error("worker stopped", zap.Int("worker", i), zap.Error(err))
			}
		}(i, w)
	}

	if a.cfg.Sweeper.Enabled {
		if err := a.sweeper.Start(runCtx); err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("start sweeper: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", zap.Error(err))
	}
	if a.cfg.Sweeper.Enabled {
		a.sweeper.Stop()
	}
	wg.Wait()
	return nil
}

// Close tears down provider clients and flushes the logger.
func (a *App) Close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync fails on some platforms.
		_ = err
	}
}
