// Package tracking provides the study's browsing measurement services.
//
// A Tracker carries tab activity from the host. Three services consume it:
// Hosts counts visits per host, ActiveURI keeps the URI shown in each tab
// and which tab has focus, and DwellTime accumulates how long each host
// was in front of the user. Counters are flushed to storage on shutdown.
package tracking

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Kind is the type of an Activity.
type Kind int

const (
	// Navigate means tab now shows URI and has focus.
	Navigate Kind = iota
	// CloseTab means tab is gone.
	CloseTab
	// Idle means no tab has focus.
	Idle
)

func (k Kind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case CloseTab:
		return "close"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// Activity is one tab event.
type Activity struct {
	Kind Kind
	Tab  int
	URI  string
	At   time.Time
}

// Store is the storage the services flush to. *storage.Service satisfies it.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Tracker fans activity out to subscribed services.
type Tracker struct {
	clock clock.Clock

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Activity)
}

// NewTracker creates a tracker stamping activity with clk.
func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Tracker{clock: clk, subs: make(map[int]func(Activity))}
}

// Navigate reports that tab shows uri and has focus.
func (t *Tracker) Navigate(tab int, uri string) {
	t.publish(Activity{Kind: Navigate, Tab: tab, URI: uri})
}

// Close reports that tab was closed.
func (t *Tracker) Close(tab int) {
	t.publish(Activity{Kind: CloseTab, Tab: tab})
}

// Idle reports that no tab has focus.
func (t *Tracker) Idle() {
	t.publish(Activity{Kind: Idle})
}

func (t *Tracker) publish(a Activity) {
	a.At = t.clock.Now()

	t.mu.RLock()
	handlers := make([]func(Activity), 0, len(t.subs))
	for _, h := range t.subs {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(a)
	}
}

// subscribe registers h and returns a func removing it.
func (t *Tracker) subscribe(h func(Activity)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = h
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time {
	return t.clock.Now()
}

// HostOf returns the lower-cased host of uri without a leading "www.",
// or "" when uri has no host.
func HostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
