package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"vpatient/internal/config"
	"vpatient/internal/domain"
	"vpatient/internal/service"
	"vpatient/internal/vpclient"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx context.Context

	cfg     *config.Shell
	log     *slog.Logger
	emitter service.EventEmitter

	page        *pageWatcher
	pages       *service.PageController
	checkpoints *service.CheckpointScheduler
}

// New creates a new App.
func New(cfg *config.Shell, log *slog.Logger) *App {
	a := &App{cfg: cfg, log: log, page: newPageWatcher()}
	a.emitter = a
	return a
}

// AssetHandler serves the activity pages the webview navigates to.
func (a *App) AssetHandler() (http.Handler, error) {
	return newActivityProxy(a.cfg.BaseURL, a.cfg.User)
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	if err := a.start(ctx); err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to start page controller: %v", err)
		return
	}
	wailsRuntime.LogInfof(ctx, "Virtual patient shell started against %s", a.cfg.BaseURL)
}

func (a *App) start(ctx context.Context) error {
	a.ctx = ctx

	client, err := vpclient.NewClient(a.cfg.BaseURL, vpclient.WithLogger(a.log), vpclient.WithUser(a.cfg.User))
	if err != nil {
		return err
	}
	a.pages, err = service.NewPageController(service.PageControllerConfig{
		Host:            a.page,
		Client:          client,
		Emitter:         a.emitter,
		Logger:          a.log,
		SaveTimeout:     a.cfg.SaveTimeout,
		NavigateTimeout: a.cfg.NavigateTimeout,
	})
	if err != nil {
		return err
	}

	if a.cfg.CheckpointSchedule != "" {
		a.checkpoints, err = service.NewCheckpointScheduler(a.log, a.pages, a.cfg.CheckpointSchedule)
		if err != nil {
			return err
		}
		a.checkpoints.Start(ctx)
	}
	return nil
}

// BeforeClose saves the page as the window goes away. It never prevents
// the close.
func (a *App) BeforeClose(ctx context.Context) (prevent bool) {
	if err := a.autosave(ctx); err != nil {
		wailsRuntime.LogWarningf(ctx, "Autosave on close failed: %v", err)
	}
	return false
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.checkpoints != nil {
		a.checkpoints.Stop()
	}
	if a.pages != nil {
		waitCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigateTimeout)
		defer cancel()
		a.pages.Wait(waitCtx)
	}
}

// Emit implements service.EventEmitter on the Wails event bus.
func (a *App) Emit(ctx context.Context, event string, data any) {
	wailsRuntime.EventsEmit(ctx, event, data)
}

// autosave runs the unload hook; an inactive hook or a page without state
// is not a failure.
func (a *App) autosave(ctx context.Context) error {
	if a.pages == nil {
		return nil
	}
	err := a.pages.Autosave(ctx)
	if errors.Is(err, domain.ErrAutosaveDisabled) || errors.Is(err, domain.ErrStateUnavailable) {
		return nil
	}
	return err
}

// ============================================================
// Page bridge bindings
// ============================================================

// PageLoaded registers a freshly loaded page and re-arms its unload hook.
func (a *App) PageLoaded(s PageSnapshot) {
	a.page.Set(s)
	a.pages.EnableAutosave(a.ctx)
}

// SyncPage records the page's current state without side effects.
func (a *App) SyncPage(s PageSnapshot) {
	a.page.Set(s)
}

// Unload is called from the page's beforeunload handler. The save runs
// here, outside the page, so it completes even after the page is gone.
func (a *App) Unload(s PageSnapshot) error {
	a.page.Set(s)
	if err := a.autosave(a.ctx); err != nil {
		return fmt.Errorf("unload: %w", err)
	}
	return nil
}

// Navigate handles the page's "next" control. It returns true when the
// page should fall back to its default action.
func (a *App) Navigate() bool {
	return a.pages.Navigate(a.ctx)
}

// AutosaveActive reports whether the unload hook is armed.
func (a *App) AutosaveActive() bool {
	return a.pages.AutosaveActive()
}

// StartPath is the activity page the shell opens first.
func (a *App) StartPath() string {
	return a.cfg.StartPath
}
