package tracking

import (
	"context"
	"sync"
)

// ActiveURI keeps the URI shown in each tab and which tab has focus.
type ActiveURI struct {
	tracker *Tracker

	mu          sync.RWMutex
	tabs        map[int]string
	focused     int
	hasFocus    bool
	unsubscribe func()
}

// NewActiveURI creates a stopped ActiveURI service.
func NewActiveURI(tracker *Tracker) *ActiveURI {
	return &ActiveURI{tracker: tracker}
}

// Startup subscribes to the tracker.
func (u *ActiveURI) Startup(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.unsubscribe != nil {
		return nil
	}
	u.tabs = make(map[int]string)
	u.hasFocus = false
	u.unsubscribe = u.tracker.subscribe(u.observe)
	return nil
}

func (u *ActiveURI) observe(a Activity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tabs == nil {
		return
	}
	switch a.Kind {
	case Navigate:
		u.tabs[a.Tab] = a.URI
		u.focused = a.Tab
		u.hasFocus = true
	case CloseTab:
		delete(u.tabs, a.Tab)
		if u.hasFocus && u.focused == a.Tab {
			u.hasFocus = false
		}
	case Idle:
		u.hasFocus = false
	}
}

// Current returns the URI of the focused tab.
func (u *ActiveURI) Current() (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.hasFocus {
		return "", false
	}
	uri, ok := u.tabs[u.focused]
	return uri, ok
}

// Tab returns the URI shown in tab.
func (u *ActiveURI) Tab(tab int) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	uri, ok := u.tabs[tab]
	return uri, ok
}

// Shutdown unsubscribes and forgets all tabs.
func (u *ActiveURI) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	unsubscribe := u.unsubscribe
	u.unsubscribe = nil
	u.tabs = nil
	u.hasFocus = false
	u.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}
