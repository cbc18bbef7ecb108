package study

import (
	"context"

	"github.com/bft-labs/studyctl/pkg/notify"
	"github.com/bft-labs/studyctl/pkg/resources"
)

// Reason tags passed to EligibilityProvider.EndStudy.
const (
	EndReasonIneligible = "ineligible"
	EndReasonExpired    = "expired"
)

// EligibilityProvider answers whether the user consents to the study and
// ends it when they do not.
type EligibilityProvider interface {
	// Startup prepares the provider. It runs before every eligibility check.
	Startup(ctx context.Context) error

	// IsUserOptedIn reports current consent. It may block on the host.
	IsUserOptedIn(ctx context.Context) (bool, error)

	// EndStudy terminates participation. The controller does not act on
	// its result beyond logging.
	EndStudy(ctx context.Context, reason string) error
}

// ResourceRegistrar registers the study stylesheet with the host.
type ResourceRegistrar interface {
	Register(ctx context.Context, id string, kind resources.Kind) error
	Unregister(ctx context.Context, id string, kind resources.Kind) error
	IsRegistered(ctx context.Context, id string, kind resources.Kind) bool
}

// Service is a subordinate service started and stopped by the controller.
type Service interface {
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// StateClearer wipes persisted per-user study state.
type StateClearer interface {
	Clear(ctx context.Context) error
}

// Signal registers one-shot interest in a host notification.
// *notify.Hub satisfies it.
type Signal interface {
	Once(topic string, handler func()) *notify.Subscription
}

// Services are the subordinate services. Nil fields are skipped. The
// controller owns the order; callers only say which service is which.
type Services struct {
	Storage   Service
	Hosts     Service
	ActiveURI Service
	DwellTime Service
	Phases    Service
}

// Step names used in logs, events, metrics and reports.
const (
	StepResource  = "resource"
	StepStorage   = "storage"
	StepHosts     = "hosts"
	StepActiveURI = "active-uri"
	StepDwellTime = "dwell-time"
	StepPhases    = "phases"
	StepUISignal  = "ui-signal"
	StepState     = "state"
)

type namedService struct {
	name string
	svc  Service
}

// startupOrder lists services in the order they start. Storage comes first
// because everything else writes to it.
func (s Services) startupOrder() []namedService {
	return []namedService{
		{StepStorage, s.Storage},
		{StepHosts, s.Hosts},
		{StepActiveURI, s.ActiveURI},
		{StepDwellTime, s.DwellTime},
		{StepPhases, s.Phases},
	}
}

// shutdownOrder stops consumers before the services they depend on.
func (s Services) shutdownOrder() []namedService {
	return []namedService{
		{StepDwellTime, s.DwellTime},
		{StepActiveURI, s.ActiveURI},
		{StepHosts, s.Hosts},
		{StepPhases, s.Phases},
		{StepStorage, s.Storage},
	}
}

// ActivationData is what the host passes to every entry point.
type ActivationData struct {
	ID          string
	Version     string
	InstallPath string
	ResourceURI string
}
