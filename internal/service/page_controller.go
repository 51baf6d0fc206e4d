package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vpatient/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Page Controller: autosave hook and navigate handler
// ─────────────────────────────────────────────────────────────

const (
	defaultSaveTimeout     = 5 * time.Second
	defaultNavigateTimeout = 30 * time.Second
)

// ActivityClient sends page state to the activity endpoints.
type ActivityClient interface {
	Save(ctx context.Context, patientID string, state domain.PageState) error
	Navigate(ctx context.Context, pageID, patientID string, state domain.PageState) (*domain.NavigateResponse, error)
}

// Redirector performs the full page navigation the server asked for.
type Redirector interface {
	Redirect(ctx context.Context, target string)
}

// EmitterRedirector hands the redirect target to the page bridge, which
// sets window.location.
type EmitterRedirector struct {
	Emitter EventEmitter
}

func (r EmitterRedirector) Redirect(ctx context.Context, target string) {
	r.Emitter.Emit(ctx, EventRedirect, map[string]string{"url": target})
}

// NavigateErrorFunc receives navigation failures that happen after the
// handler has returned.
type NavigateErrorFunc func(ctx context.Context, err error)

type PageControllerConfig struct {
	Host    domain.PageHost
	Client  ActivityClient
	Emitter EventEmitter

	// Optional configuration.
	Redirector      Redirector
	Logger          *slog.Logger
	SaveTimeout     time.Duration
	NavigateTimeout time.Duration
	OnNavigateError NavigateErrorFunc
}

func (c *PageControllerConfig) Validate() error {
	if c.Host == nil {
		return errors.New("page host is required")
	}
	if c.Client == nil {
		return errors.New("activity client is required")
	}
	if c.Emitter == nil {
		return errors.New("event emitter is required")
	}

	// Optional configuration.
	if c.Redirector == nil {
		c.Redirector = EmitterRedirector{Emitter: c.Emitter}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = defaultSaveTimeout
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = defaultNavigateTimeout
	}
	return nil
}

// PageController owns the unload autosave hook of one page view and
// handles the explicit "next page" action.
type PageController struct {
	cfg PageControllerConfig
	log *slog.Logger

	mu         sync.Mutex
	autosave   bool
	cancelSave context.CancelFunc

	// saveMu serializes autosave submissions with navigate submissions so
	// a save already on the wire lands before the navigate request.
	saveMu sync.Mutex

	running runningGuard
}

// NewPageController returns a controller with the autosave hook active.
func NewPageController(cfg PageControllerConfig) (*PageController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("page controller: %w", err)
	}
	c := &PageController{
		cfg:      cfg,
		log:      cfg.Logger,
		autosave: true,
	}
	if c.cfg.OnNavigateError == nil {
		c.cfg.OnNavigateError = c.emitNavigateError
	}
	return c, nil
}

// EnableAutosave activates the unload hook. Returns true if it was inactive.
func (c *PageController) EnableAutosave(ctx context.Context) bool {
	return c.setAutosave(ctx, true)
}

// DisableAutosave deactivates the unload hook. Returns true if it was active.
func (c *PageController) DisableAutosave(ctx context.Context) bool {
	return c.setAutosave(ctx, false)
}

// AutosaveActive reports whether the unload hook is active.
func (c *PageController) AutosaveActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autosave
}

func (c *PageController) setAutosave(ctx context.Context, on bool) bool {
	c.mu.Lock()
	changed := c.autosave != on
	c.autosave = on
	if !on && c.cancelSave != nil {
		c.cancelSave()
		c.cancelSave = nil
	}
	c.mu.Unlock()

	if !changed {
		return false
	}
	event := EventAutosaveDisabled
	if on {
		event = EventAutosaveEnabled
	}
	c.cfg.Emitter.Emit(ctx, event, nil)
	return true
}

// Autosave submits the current state to the save endpoint and blocks until
// the server answers or SaveTimeout elapses. The reply is not inspected.
// Deactivating the hook cancels a save that is still in flight.
func (c *PageController) Autosave(ctx context.Context) error {
	if !c.AutosaveActive() {
		return domain.ErrAutosaveDisabled
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SaveTimeout)
	defer cancel()
	if !c.armSave(cancel) {
		return domain.ErrAutosaveDisabled
	}
	defer c.armSave(nil)

	state, ok := c.cfg.Host.GetState()
	if !ok {
		return domain.ErrStateUnavailable
	}
	id := c.cfg.Host.Identity()
	if id.PatientID == "" {
		return fmt.Errorf("autosave: patient: %w", domain.ErrIdentifierMissing)
	}

	start := time.Now()
	if err := c.cfg.Client.Save(ctx, id.PatientID, state); err != nil {
		if !c.AutosaveActive() {
			c.log.Debug("autosave cancelled by navigate", "patient", id.PatientID)
			return fmt.Errorf("autosave: %w", domain.ErrAutosaveDisabled)
		}
		c.log.Warn("autosave failed", "patient", id.PatientID, "error", err)
		return fmt.Errorf("autosave: %w", err)
	}
	c.log.Debug("autosave complete", "patient", id.PatientID, "duration", time.Since(start))
	return nil
}

// armSave records the cancel func of the running save. It reports false,
// leaving nothing recorded, when the hook was deactivated meanwhile.
func (c *PageController) armSave(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel != nil && !c.autosave {
		return false
	}
	c.cancelSave = cancel
	return true
}

// Navigate handles the "next page" action. It returns true when the caller
// should let its default action proceed (the page is invalid or cannot be
// read), and false once a navigate request has been dispatched. The request
// completes in the background; its outcome drives the Redirector or the
// OnNavigateError callback.
func (c *PageController) Navigate(ctx context.Context) bool {
	if !c.cfg.Host.IsValid() {
		err := fmt.Errorf("navigate: %w", domain.ErrValidationFailed)
		c.log.Debug("navigate: deferring to default action", "kind", domain.ErrorKind(err))
		c.cfg.Emitter.Emit(ctx, EventNavigateDeferred, map[string]string{"kind": domain.ErrorKind(err)})
		return true
	}

	id := c.cfg.Host.Identity()
	if id.PageID == "" || id.PatientID == "" {
		c.cfg.OnNavigateError(ctx, fmt.Errorf("navigate: %w", domain.ErrIdentifierMissing))
		return true
	}
	state, ok := c.cfg.Host.GetState()
	if !ok {
		c.cfg.OnNavigateError(ctx, fmt.Errorf("navigate: %w", domain.ErrStateUnavailable))
		return true
	}

	reqID := uuid.NewString()
	if !c.running.TryLock(reqID) {
		c.cfg.OnNavigateError(ctx, fmt.Errorf("navigate: request %s already running", reqID))
		return true
	}

	// Navigate saves explicitly; the unload hook must not fire as well.
	c.DisableAutosave(ctx)

	go c.navigate(context.WithoutCancel(ctx), reqID, id, state)
	return false
}

func (c *PageController) navigate(ctx context.Context, reqID string, id domain.PageIdentity, state domain.PageState) {
	defer c.running.Unlock(reqID)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("navigate: recovered panic", "request", reqID, "panic", r)
		}
	}()

	// Wait out a save that was already on the wire.
	c.saveMu.Lock()
	c.saveMu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigateTimeout)
	resp, err := c.cfg.Client.Navigate(reqCtx, id.PageID, id.PatientID, state)
	cancel()
	if err != nil {
		c.cfg.OnNavigateError(ctx, fmt.Errorf("navigate: %w", err))
		return
	}

	c.log.Info("navigate: redirecting", "request", reqID, "page", id.PageID, "patient", id.PatientID, "redirect", resp.Redirect)
	c.cfg.Redirector.Redirect(ctx, resp.Redirect)
}

// Pending returns the number of navigations still waiting on the server.
func (c *PageController) Pending() int {
	return c.running.Len()
}

// Wait blocks until dispatched navigations finish or ctx is done.
func (c *PageController) Wait(ctx context.Context) {
	c.running.WaitAll(ctx)
}

func (c *PageController) emitNavigateError(ctx context.Context, err error) {
	c.log.Error("navigate failed", "kind", domain.ErrorKind(err), "error", err)
	c.cfg.Emitter.Emit(ctx, EventNavigateFailed, map[string]string{
		"kind":  domain.ErrorKind(err),
		"error": err.Error(),
	})
}
