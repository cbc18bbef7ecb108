package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/study"
)

// DwellPrefix is the storage prefix for dwell totals in milliseconds.
const DwellPrefix = "dwell:"

// DwellTime accumulates how long each host had focus.
type DwellTime struct {
	tracker *Tracker
	store   Store
	logger  log.Logger

	mu          sync.Mutex
	totals      map[string]time.Duration
	activeTab   int
	activeHost  string
	since       time.Time
	unsubscribe func()
}

// NewDwellTime creates a stopped DwellTime service.
func NewDwellTime(tracker *Tracker, store Store, logger log.Logger) *DwellTime {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &DwellTime{tracker: tracker, store: store, logger: logger}
}

// Startup subscribes to the tracker.
func (d *DwellTime) Startup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unsubscribe != nil {
		return nil
	}
	d.totals = make(map[string]time.Duration)
	d.activeHost = ""
	d.unsubscribe = d.tracker.subscribe(d.observe)
	return nil
}

func (d *DwellTime) observe(a Activity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.totals == nil {
		return
	}
	switch a.Kind {
	case Navigate:
		d.closeInterval(a.At)
		d.activeTab = a.Tab
		d.activeHost = HostOf(a.URI)
		d.since = a.At
	case CloseTab:
		if a.Tab == d.activeTab {
			d.closeInterval(a.At)
		}
	case Idle:
		d.closeInterval(a.At)
	}
}

// closeInterval must be called with mu held.
func (d *DwellTime) closeInterval(at time.Time) {
	if d.activeHost == "" {
		return
	}
	if at.After(d.since) {
		d.totals[d.activeHost] += at.Sub(d.since)
	}
	d.activeHost = ""
}

// Total returns the unflushed dwell time for host, including an open interval.
func (d *DwellTime) Total(host string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := d.totals[host]
	if d.activeHost == host {
		if now := d.tracker.Now(); now.After(d.since) {
			total += now.Sub(d.since)
		}
	}
	return total
}

// Shutdown closes the open interval, unsubscribes, and adds the totals to
// storage. Totals are dropped when ctx is purging.
func (d *DwellTime) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	unsubscribe := d.unsubscribe
	if unsubscribe != nil {
		d.closeInterval(d.tracker.Now())
	}
	totals := d.totals
	d.unsubscribe = nil
	d.totals = nil
	d.mu.Unlock()

	if unsubscribe == nil {
		return nil
	}
	unsubscribe()

	if study.Purging(ctx) {
		d.logger.Debug("dwell time discarded", log.Int("hosts", len(totals)))
		return nil
	}
	deltas := make(map[string]int64, len(totals))
	for host, dur := range totals {
		deltas[host] = dur.Milliseconds()
	}
	if err := addCounters(ctx, d.store, DwellPrefix, deltas); err != nil {
		return errors.Annotate(err, "flushing dwell time")
	}
	d.logger.Debug("dwell time flushed", log.Int("hosts", len(totals)))
	return nil
}
