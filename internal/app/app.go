package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/browser"
	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
	"github.com/appello-dev/appello/internal/queue"
	"github.com/appello-dev/appello/internal/server"
	"github.com/appello-dev/appello/internal/services/filter"
	"github.com/appello-dev/appello/internal/services/proposals"
	"github.com/appello-dev/appello/internal/services/scheduler"
	"github.com/appello-dev/appello/internal/sessions"
	badgerstorage "github.com/appello-dev/appello/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	Browser     *browser.Surface
	Cursors     *sessions.CursorStore
	Filter      interfaces.PostingFilter
	PromptStore *proposals.PromptStore
	Generator   interfaces.ProposalGenerator

	Dispatcher *queue.Dispatcher
	Scheduler  *scheduler.Scheduler
	Server     *server.Server
}

// New wires the application. Startup recovery runs here, before the
// dispatcher ever polls: any task still pending or processing from a
// previous process is aborted so half-done browser work is never
// resumed blind.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	if err := app.recoverOrphanedTasks(); err != nil {
		storageManager.Close()
		return nil, err
	}

	surface, err := browser.NewSurface(cfg.Browser, cfg.Site.HomeURL, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	app.Browser = surface

	app.Cursors = sessions.NewCursorStore(cfg.Site.CursorFile, logger)
	app.Filter = filter.New(cfg.Filter, logger)
	app.PromptStore = proposals.NewPromptStore(storageManager.KeyValueStorage(), logger)

	if cfg.Claude.APIKey != "" {
		generator, err := proposals.NewGenerator(
			cfg.Claude,
			storageManager.PostingStorage(),
			storageManager.ProposalStorage(),
			app.PromptStore,
			logger,
		)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize proposal generator: %w", err)
		}
		app.Generator = generator
	} else {
		logger.Warn().Msg("No Anthropic API key configured, proposal generation disabled")
	}

	app.Dispatcher = queue.NewDispatcher(
		storageManager.TaskStorage(),
		cfg.Queue.PollInterval,
		cfg.Queue.TaskTimeout,
		logger,
	)
	app.registerHandlers()

	app.Scheduler = scheduler.New(cfg.Scheduler, storageManager.TaskStorage(), logger)
	app.Server = server.New(cfg, storageManager, app.Generator, app.PromptStore, logger)

	return app, nil
}

// recoverOrphanedTasks aborts tasks a previous process left behind.
// Runs exactly once, before the dispatcher starts.
func (a *App) recoverOrphanedTasks() error {
	ctx := context.Background()
	for _, taskType := range []models.TaskType{models.TaskTypeDiscover, models.TaskTypeApply} {
		count, err := a.StorageManager.TaskStorage().AbortOrphaned(ctx, taskType)
		if err != nil {
			return fmt.Errorf("startup recovery failed for %s tasks: %w", taskType, err)
		}
		if count > 0 {
			a.Logger.Warn().
				Str("task_type", string(taskType)).
				Int("aborted", count).
				Msg("Aborted tasks orphaned by previous run")
		}
	}
	return nil
}

// registerHandlers binds each task type to a fresh session per task.
func (a *App) registerHandlers() {
	a.Dispatcher.RegisterHandler(models.TaskTypeDiscover, func(ctx context.Context, task *models.Task) (queue.Result, error) {
		session := sessions.NewDiscoverySession(
			a.Browser,
			a.StorageManager.PostingStorage(),
			a.Cursors,
			a.Filter,
			a.Config.Site,
			a.Config.Browser,
			a.Logger.WithCorrelationId(task.ID),
		)
		outcome := session.Run(ctx)
		return queue.Result{Status: outcome.Status, Message: outcome.Message}, nil
	})

	a.Dispatcher.RegisterHandler(models.TaskTypeApply, func(ctx context.Context, task *models.Task) (queue.Result, error) {
		payload, err := task.DecodeApplyPayload()
		if err != nil {
			return queue.Result{}, err
		}
		session := sessions.NewApplySession(
			a.Browser,
			a.StorageManager.ProposalStorage(),
			a.StorageManager.PostingStorage(),
			a.Config.Site,
			a.Config.Browser,
			a.Logger.WithCorrelationId(task.ID),
		)
		outcome := session.Run(ctx, payload.JobURL, payload.ApprovedBy)
		return queue.Result{Status: outcome.Status, Message: outcome.Message}, nil
	})
}

// Start launches the background components. The HTTP server is started
// separately by the caller so it can own the listener error.
func (a *App) Start(ctx context.Context) error {
	a.Dispatcher.Start(ctx)
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	return nil
}

// Close stops everything in reverse dependency order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.Browser != nil {
		a.Browser.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
