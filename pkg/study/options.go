package study

import (
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/prefs"
)

// Option configures optional behavior of the Controller.
type Option func(*options)

// options holds the collaborators of a Controller.
type options struct {
	eligibility  EligibilityProvider
	prefs        prefs.Store
	signal       Signal
	registrar    ResourceRegistrar
	services     Services
	clearer      StateClearer
	logger       log.Logger
	clock        clock.Clock
	eventHandler EventHandler
	registerer   prometheus.Registerer
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
		clock:  clock.WallClock,
	}
}

// WithEligibility sets the consent provider. Required.
func WithEligibility(p EligibilityProvider) Option {
	return func(o *options) {
		o.eligibility = p
	}
}

// WithPrefs sets the preference store holding the deadline. Required.
func WithPrefs(s prefs.Store) Option {
	return func(o *options) {
		o.prefs = s
	}
}

// WithSignal sets the source of the UI-ready notification. Required.
func WithSignal(s Signal) Option {
	return func(o *options) {
		o.signal = s
	}
}

// WithRegistrar sets the stylesheet registrar. Required.
func WithRegistrar(r ResourceRegistrar) Option {
	return func(o *options) {
		o.registrar = r
	}
}

// WithServices sets the subordinate services. Nil services are skipped.
func WithServices(s Services) Option {
	return func(o *options) {
		o.services = s
	}
}

// WithStateClearer sets the store wiped on uninstall.
// If not provided, Storage is used when it implements StateClearer.
func WithStateClearer(c StateClearer) Option {
	return func(o *options) {
		o.clearer = c
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock used for the deadline. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithEventHandler sets a handler for controller events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetrics registers the controller's collectors with reg.
// If not provided, a private registry is used.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStorage sets the storage service. It starts first and stops last.
func WithStorage(s Service) Option {
	return func(o *options) {
		o.services.Storage = s
	}
}

// WithHostTracking sets the host-tracking service.
func WithHostTracking(s Service) Option {
	return func(o *options) {
		o.services.Hosts = s
	}
}

// WithActiveURITracking sets the URI-activity tracking service.
func WithActiveURITracking(s Service) Option {
	return func(o *options) {
		o.services.ActiveURI = s
	}
}

// WithDwellTime sets the dwell-time measurement service.
func WithDwellTime(s Service) Option {
	return func(o *options) {
		o.services.DwellTime = s
	}
}

// WithPhaseScheduler sets the phase scheduler.
func WithPhaseScheduler(s Service) Option {
	return func(o *options) {
		o.services.Phases = s
	}
}
