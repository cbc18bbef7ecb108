package study

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/lifecycle"
	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/notify"
)

const (
	// ErrInvalidConfig is returned by New for a bad Config or a missing
	// required collaborator.
	ErrInvalidConfig = errors.ConstError("invalid study configuration")

	// ErrAlreadyActive is returned by Startup when the previous activation
	// has not been shut down.
	ErrAlreadyActive = errors.ConstError("study already active")

	// ErrWaitTimeout is returned by Wait when the deferred start is still running.
	ErrWaitTimeout = lifecycle.ErrWaitTimeout
)

const errStepSkipped = errors.ConstError("shutdown step skipped")

// Controller drives the study through its lifecycle. Create it with New.
type Controller struct {
	cfg     Config
	opts    options
	logger  log.Logger
	manager *lifecycle.Manager
	emitter *eventEmitterWrapper
	metrics *metrics

	// mu serialises entry points and the deferred start.
	mu            sync.Mutex
	activationID  string
	alog          log.Logger
	sub           *notify.Subscription
	attempted     map[string]bool
	expiration    expiration.Record
	hasExpiration bool
}

// New creates a Controller in StateUnloaded.
func New(cfg Config, opts ...Option) (*Controller, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case o.eligibility == nil:
		return nil, errors.Annotate(ErrInvalidConfig, "eligibility provider is required")
	case o.prefs == nil:
		return nil, errors.Annotate(ErrInvalidConfig, "preference store is required")
	case o.signal == nil:
		return nil, errors.Annotate(ErrInvalidConfig, "ui signal is required")
	case o.registrar == nil:
		return nil, errors.Annotate(ErrInvalidConfig, "resource registrar is required")
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.clearer == nil {
		if c, ok := o.services.Storage.(StateClearer); ok {
			o.clearer = c
		}
	}

	m := newMetrics(o.registerer)
	emitter := &eventEmitterWrapper{handler: o.eventHandler, metrics: m, logger: o.logger}

	return &Controller{
		cfg:       cfg,
		opts:      o,
		logger:    o.logger,
		alog:      o.logger,
		manager:   lifecycle.NewManager(o.logger, emitter),
		emitter:   emitter,
		metrics:   m,
		attempted: make(map[string]bool),
	}, nil
}

// Install is called by the host when the study is installed. It does nothing.
func (c *Controller) Install(ctx context.Context, data ActivationData, reason lifecycle.Reason) {
	c.metrics.entryPoint("install", reason)
	c.logger.Debug("install", log.String("id", data.ID), log.String("reason", reason.String()))
}

// Uninstall is called by the host when the study is removed. It does
// nothing; persisted state is cleared by Shutdown with AddonUninstall.
func (c *Controller) Uninstall(ctx context.Context, data ActivationData, reason lifecycle.Reason) {
	c.metrics.entryPoint("uninstall", reason)
	c.logger.Debug("uninstall", log.String("id", data.ID), log.String("reason", reason.String()))
}

// Startup runs the eligibility and expiration gate and then brings the
// study up. For AppStartup it only registers for the UI-ready signal and
// returns; the services start when the signal fires. For every other
// reason the services start before Startup returns.
//
// Ending the study is not an error. Errors from the gate collaborators
// and from any service are returned, and later services are not started.
func (c *Controller) Startup(ctx context.Context, data ActivationData, reason lifecycle.Reason) error {
	if !reason.Valid() {
		return errors.Annotatef(lifecycle.ErrUnknownReason, "startup reason %d", int(reason))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.entryPoint("startup", reason)

	if _, err := c.manager.Fire(lifecycle.EventActivate, "startup: "+reason.String()); err != nil {
		return errors.Annotatef(ErrAlreadyActive, "controller is %s", c.manager.State())
	}

	c.activationID = uuid.NewString()
	c.attempted = make(map[string]bool)
	c.alog = c.logger.With(
		log.String("activation", c.activationID),
		log.String("reason", reason.String()),
	)
	c.alog.Info("study starting",
		log.String("id", data.ID),
		log.String("version", data.Version),
	)

	ended, err := c.gate(ctx)
	if err != nil {
		c.emitter.startupFailed("gate", err)
		return err
	}
	if ended {
		return nil
	}

	if reason.IsColdBoot() {
		c.deferStartup(ctx)
		return nil
	}

	if _, err := c.manager.Fire(lifecycle.EventStartDirect, reason.String()); err != nil {
		return errors.Trace(err)
	}
	return c.finishStartup(ctx)
}

// gate reports whether the study ended. It must be called with mu held.
func (c *Controller) gate(ctx context.Context) (bool, error) {
	elig := c.opts.eligibility

	if err := elig.Startup(ctx); err != nil {
		return false, errors.Annotate(err, "starting eligibility provider")
	}

	optedIn, err := elig.IsUserOptedIn(ctx)
	if err != nil {
		return false, errors.Annotate(err, "checking eligibility")
	}
	if !optedIn {
		c.endStudy(ctx, EndReasonIneligible, time.Time{})
		_, _ = c.manager.Fire(lifecycle.EventIneligible, EndReasonIneligible)
		return true, nil
	}

	rec, created, err := expiration.Ensure(ctx, c.opts.prefs, c.cfg.ExpirationKey, c.opts.clock, c.cfg.Phases)
	if err != nil {
		return false, errors.Annotate(err, "ensuring expiration record")
	}
	c.expiration = rec
	c.hasExpiration = true
	c.metrics.setDeadline(rec)
	if created {
		c.alog.Info("expiration record created",
			log.Time("expires", rec.Time()),
			log.Duration("length", expiration.StudyLength(c.cfg.Phases)),
		)
	}

	if expiration.IsExpired(rec, c.opts.clock.Now()) {
		c.endStudy(ctx, EndReasonExpired, rec.Time())
		_, _ = c.manager.Fire(lifecycle.EventExpired, EndReasonExpired)
		return true, nil
	}
	return false, nil
}

// endStudy asks the provider to end participation. Its result only gets logged.
func (c *Controller) endStudy(ctx context.Context, reason string, deadline time.Time) {
	c.alog.Info("ending study", log.String("end_reason", reason))
	if err := c.opts.eligibility.EndStudy(ctx, reason); err != nil {
		c.alog.Warn("end study failed", log.String("end_reason", reason), log.Err(err))
	}
	c.emitter.studyEnded(reason, deadline)
}

// deferStartup registers for the UI-ready signal. The worker is counted
// here so that Wait covers a delivery that has not arrived yet; whichever
// of the handler or Shutdown settles the subscription releases it.
func (c *Controller) deferStartup(ctx context.Context) {
	id := c.activationID
	runCtx := context.WithoutCancel(ctx)

	c.manager.AddWorker()
	c.sub = c.opts.signal.Once(c.cfg.UITopic, func() {
		defer c.manager.WorkerDone()
		c.onUIReady(runCtx, id)
	})
	_, _ = c.manager.Fire(lifecycle.EventDefer, "waiting for "+c.cfg.UITopic)
}

// onUIReady finishes a deferred start. A delivery for an activation that
// has since been shut down is ignored.
func (c *Controller) onUIReady(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.activationID || !c.manager.Is(lifecycle.StateAwaitingUI) {
		c.logger.Debug("ignoring stale ui-ready delivery",
			log.String("activation", id),
			log.String("state", c.manager.State().String()),
		)
		return
	}
	c.sub = nil

	if _, err := c.manager.Fire(lifecycle.EventUIReady, c.cfg.UITopic); err != nil {
		c.alog.Error("ui-ready transition failed", log.Err(err))
		return
	}
	if err := c.finishStartup(ctx); err != nil {
		c.alog.Error("deferred startup failed", log.Err(err))
	}
}

// finishStartup registers the stylesheet and starts each service in order,
// stopping at the first failure. It must be called with mu held.
func (c *Controller) finishStartup(ctx context.Context) error {
	reg := c.opts.registrar
	if !reg.IsRegistered(ctx, c.cfg.ResourceID, c.cfg.ResourceKind) {
		if err := reg.Register(ctx, c.cfg.ResourceID, c.cfg.ResourceKind); err != nil {
			return c.failStartup(StepResource, err)
		}
		c.alog.Debug("resource registered", log.String("resource", c.cfg.ResourceID))
	}

	for _, s := range c.opts.services.startupOrder() {
		if s.svc == nil {
			continue
		}
		c.attempted[s.name] = true
		start := time.Now()
		if err := s.svc.Startup(ctx); err != nil {
			return c.failStartup(s.name, err)
		}
		c.alog.Info("service started",
			log.String("service", s.name),
			log.Duration("took", time.Since(start)),
		)
	}

	c.alog.Info("study running")
	return nil
}

func (c *Controller) failStartup(step string, err error) error {
	err = errors.Annotatef(err, "starting %s", step)
	c.alog.Error("startup step failed", log.String("step", step), log.Err(err))
	c.emitter.startupFailed(step, err)
	return err
}

// Shutdown tears the study down. Every step runs even when an earlier one
// fails, and Shutdown never returns an error or panics. It is safe to call
// in any state, including before Startup.
func (c *Controller) Shutdown(ctx context.Context, data ActivationData, reason lifecycle.Reason) ShutdownReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason.PurgesState() {
		ctx = WithPurge(ctx)
	}

	c.metrics.entryPoint("shutdown", reason)
	if _, err := c.manager.Fire(lifecycle.EventShutdown, "shutdown: "+reason.String()); err != nil {
		c.alog.Warn("shutdown transition rejected", log.Err(err))
	}

	report := ShutdownReport{Reason: reason}
	add := func(r StepResult) {
		report.Steps = append(report.Steps, r)
		c.emitter.shutdownStep(r)
	}

	add(c.runStep(ctx, StepUISignal, c.cancelDeferred))

	if reason.PurgesState() && c.opts.clearer != nil {
		add(c.runStep(ctx, StepState, c.opts.clearer.Clear))
	} else {
		if reason.PurgesState() {
			c.alog.Warn("no state clearer configured, persisted state kept")
		}
		add(StepResult{Name: StepState, Skipped: true})
	}

	for _, s := range c.opts.services.shutdownOrder() {
		if s.svc == nil || !c.attempted[s.name] {
			add(StepResult{Name: s.name, Skipped: true})
			continue
		}
		add(c.runStep(ctx, s.name, s.svc.Shutdown))
	}

	add(c.runStep(ctx, StepResource, c.unregisterResource))

	c.attempted = make(map[string]bool)
	if _, err := c.manager.Fire(lifecycle.EventUnloaded, "shutdown complete"); err != nil {
		c.alog.Warn("unload transition rejected", log.Err(err))
	}

	c.alog.Info("study shut down",
		log.String("id", data.ID),
		log.Int("failed_steps", len(report.Failed())),
	)
	c.alog = c.logger
	return report
}

// cancelDeferred drops a pending UI-ready registration. A registration
// that already fired is not an error.
func (c *Controller) cancelDeferred(ctx context.Context) error {
	sub := c.sub
	c.sub = nil
	if sub == nil {
		return errStepSkipped
	}

	err := sub.Cancel()
	switch {
	case err == nil:
		c.manager.WorkerDone()
		c.alog.Debug("deferred start cancelled")
	case errors.Is(err, notify.ErrNotSubscribed):
		return nil
	}
	return err
}

// unregisterResource removes the stylesheet if this or an earlier
// activation registered it.
func (c *Controller) unregisterResource(ctx context.Context) error {
	reg := c.opts.registrar
	if !reg.IsRegistered(ctx, c.cfg.ResourceID, c.cfg.ResourceKind) {
		return errStepSkipped
	}
	return reg.Unregister(ctx, c.cfg.ResourceID, c.cfg.ResourceKind)
}

// runStep runs one shutdown step, turning a panic into an error. A step
// returning errStepSkipped is recorded as skipped.
func (c *Controller) runStep(ctx context.Context, name string, fn func(context.Context) error) (res StepResult) {
	res.Name = name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic in %s: %v", name, r)
		}
		switch {
		case res.Err != nil:
			c.alog.Warn("shutdown step failed", log.String("step", name), log.Err(res.Err))
		case res.Skipped:
			c.alog.Debug("shutdown step skipped", log.String("step", name))
		default:
			c.alog.Debug("shutdown step complete", log.String("step", name))
		}
	}()
	if err := fn(ctx); errors.Is(err, errStepSkipped) {
		res.Skipped = true
	} else {
		res.Err = err
	}
	return res
}

// Wait blocks until a deferred start that has been delivered finishes, or
// until a pending registration is settled by Shutdown.
func (c *Controller) Wait(timeout time.Duration) error {
	return c.manager.WaitWithTimeout(timeout)
}

// State returns the current lifecycle state.
func (c *Controller) State() lifecycle.State {
	return c.manager.State()
}

// Expiration returns the deadline read or created by the last gate.
func (c *Controller) Expiration() (expiration.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiration, c.hasExpiration
}

// ActivationID returns the ID tagging the current activation's logs.
func (c *Controller) ActivationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activationID
}

// Pending reports whether a UI-ready registration is outstanding.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub.Active()
}
