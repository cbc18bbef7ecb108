package tracking

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/study"
)

// HostsPrefix is the storage prefix for visit counts.
const HostsPrefix = "hosts:"

// Hosts counts navigations per host.
type Hosts struct {
	tracker *Tracker
	store   Store
	logger  log.Logger

	mu          sync.Mutex
	visits      map[string]int64
	unsubscribe func()
}

// NewHosts creates a stopped Hosts service.
func NewHosts(tracker *Tracker, store Store, logger log.Logger) *Hosts {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Hosts{tracker: tracker, store: store, logger: logger}
}

// Startup subscribes to the tracker.
func (h *Hosts) Startup(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil {
		return nil
	}
	h.visits = make(map[string]int64)
	h.unsubscribe = h.tracker.subscribe(h.observe)
	return nil
}

func (h *Hosts) observe(a Activity) {
	if a.Kind != Navigate {
		return
	}
	host := HostOf(a.URI)
	if host == "" {
		return
	}
	h.mu.Lock()
	if h.visits != nil {
		h.visits[host]++
	}
	h.mu.Unlock()
}

// Visits returns the unflushed count for host.
func (h *Hosts) Visits(host string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visits[host]
}

// Shutdown unsubscribes and adds the counts to storage. Counts are
// dropped when ctx is purging.
func (h *Hosts) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	unsubscribe := h.unsubscribe
	visits := h.visits
	h.unsubscribe = nil
	h.visits = nil
	h.mu.Unlock()

	if unsubscribe == nil {
		return nil
	}
	unsubscribe()

	if study.Purging(ctx) {
		h.logger.Debug("host visits discarded", log.Int("hosts", len(visits)))
		return nil
	}
	if err := addCounters(ctx, h.store, HostsPrefix, visits); err != nil {
		return errors.Annotate(err, "flushing host visits")
	}
	h.logger.Debug("host visits flushed", log.Int("hosts", len(visits)))
	return nil
}
