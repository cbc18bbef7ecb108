package notify

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
)

// UIReadyTopic is published by the host once its windows have been restored.
const UIReadyTopic = "sessionstore-windows-restored"

// ErrNotSubscribed is returned by Cancel when there is no pending
// registration. Callers treat it as a no-op.
const ErrNotSubscribed = errors.ConstError("not subscribed")

// Hub dispatches topics to subscribers.
type Hub struct {
	hub *pubsub.SimpleHub
}

// NewHub creates a hub. Subscriber handlers run on hub goroutines.
func NewHub() *Hub {
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("studyctl.notify"),
		}),
	}
}

// Publish notifies every current subscriber of topic.
func (h *Hub) Publish(topic string) {
	_ = h.hub.Publish(topic, nil)
}

// Once registers handler for the next delivery of topic only.
func (h *Hub) Once(topic string, handler func()) *Subscription {
	sub := &Subscription{topic: topic}

	// Hold the lock so a delivery racing with registration waits for the
	// unsubscribe func to be recorded.
	sub.mu.Lock()
	sub.unsubscribe = h.hub.Subscribe(topic, func(string, interface{}) {
		if sub.fire() {
			handler()
		}
	})
	sub.mu.Unlock()

	return sub
}

// Subscription is a one-shot registration returned by Hub.Once.
type Subscription struct {
	topic       string
	mu          sync.Mutex
	unsubscribe func()
	fired       bool
	cancelled   bool
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// fire marks the subscription delivered and deregisters it. Only the first
// caller gets true.
func (s *Subscription) fire() bool {
	s.mu.Lock()
	if s.fired || s.cancelled {
		s.mu.Unlock()
		return false
	}
	s.fired = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	return true
}

// Cancel deregisters a pending subscription. It returns ErrNotSubscribed
// for a nil, fired, or already cancelled subscription.
func (s *Subscription) Cancel() error {
	if s == nil {
		return ErrNotSubscribed
	}

	s.mu.Lock()
	if s.fired || s.cancelled {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	s.cancelled = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	return nil
}

// Fired reports whether the handler has been (or is being) invoked.
func (s *Subscription) Fired() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Active reports whether the subscription is still waiting for a delivery.
func (s *Subscription) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.fired && !s.cancelled
}
