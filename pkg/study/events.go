package study

import (
	"fmt"
	"time"

	"github.com/bft-labs/studyctl/pkg/lifecycle"
	"github.com/bft-labs/studyctl/pkg/log"
)

// StateChangeEvent is delivered on every lifecycle transition.
type StateChangeEvent struct {
	Previous lifecycle.State
	Current  lifecycle.State
	Reason   string
}

// StudyEndedEvent is delivered when the startup gate ends the study.
type StudyEndedEvent struct {
	// Reason is EndReasonIneligible or EndReasonExpired.
	Reason string
	// Expiration is the persisted deadline. It is zero when the user was
	// not opted in, since the deadline is only read for eligible users.
	Expiration time.Time
}

// StartupFailedEvent is delivered when a startup step fails.
type StartupFailedEvent struct {
	Step string
	Err  error
}

// ShutdownStepEvent is delivered once per shutdown step.
type ShutdownStepEvent struct {
	Step    string
	Err     error
	Skipped bool
}

// EventHandler receives controller notifications. Handlers are called
// synchronously with the controller locked and must not call back into it.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnStudyEnded(event StudyEndedEvent)
	OnStartupFailed(event StartupFailedEvent)
	OnShutdownStep(event ShutdownStepEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only what you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)     {}
func (BaseEventHandler) OnStudyEnded(StudyEndedEvent)       {}
func (BaseEventHandler) OnStartupFailed(StartupFailedEvent) {}
func (BaseEventHandler) OnShutdownStep(ShutdownStepEvent)   {}

// eventEmitterWrapper adapts EventHandler to lifecycle.EventEmitter,
// records metrics, and tolerates a nil handler. A panicking handler is
// logged and otherwise ignored.
type eventEmitterWrapper struct {
	handler EventHandler
	metrics *metrics
	logger  log.Logger
}

func (e *eventEmitterWrapper) deliver(event string, fn func(h EventHandler)) {
	if e.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				log.String("event", event),
				log.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(e.handler)
}

func (e *eventEmitterWrapper) OnStateChange(previous, current lifecycle.State, reason string) {
	e.metrics.transition(previous, current)
	e.deliver("state-change", func(h EventHandler) {
		h.OnStateChange(StateChangeEvent{
			Previous: previous,
			Current:  current,
			Reason:   reason,
		})
	})
}

func (e *eventEmitterWrapper) studyEnded(reason string, deadline time.Time) {
	e.metrics.studyEnded(reason)
	e.deliver("study-ended", func(h EventHandler) {
		h.OnStudyEnded(StudyEndedEvent{Reason: reason, Expiration: deadline})
	})
}

func (e *eventEmitterWrapper) startupFailed(step string, err error) {
	e.metrics.startupFailed(step)
	e.deliver("startup-failed", func(h EventHandler) {
		h.OnStartupFailed(StartupFailedEvent{Step: step, Err: err})
	})
}

func (e *eventEmitterWrapper) shutdownStep(r StepResult) {
	e.metrics.shutdownStep(r)
	e.deliver("shutdown-step", func(h EventHandler) {
		h.OnShutdownStep(ShutdownStepEvent{Step: r.Name, Err: r.Err, Skipped: r.Skipped})
	})
}
