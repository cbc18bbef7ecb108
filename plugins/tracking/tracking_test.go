package tracking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/study"
	"github.com/bft-labs/studyctl/plugins/storage"
)

func newStore(t *testing.T) *storage.Service {
	t.Helper()
	ctx := context.Background()
	store := storage.New(storage.DefaultConfig())
	if err := store.Startup(ctx); err != nil {
		t.Fatalf("storage Startup() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Shutdown(ctx) })
	return store
}

func TestHostOf(t *testing.T) {
	tests := map[string]string{
		"https://www.Example.com/news?x=1": "example.com",
		"http://news.bbc.co.uk:8080/":      "news.bbc.co.uk",
		"about:blank":                      "",
		"not a uri":                        "",
	}
	for uri, want := range tests {
		if got := HostOf(uri); got != want {
			t.Errorf("HostOf(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestServices_TrackAndFlush(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	tracker := NewTracker(clk)
	store := newStore(t)
	svcs := NewServices(tracker, store, nil)

	for _, s := range []interface{ Startup(context.Context) error }{svcs.Hosts, svcs.ActiveURI, svcs.DwellTime} {
		if err := s.Startup(ctx); err != nil {
			t.Fatalf("Startup() error = %v", err)
		}
	}

	tracker.Navigate(1, "https://example.com/a")
	clk.Advance(30 * time.Second)
	tracker.Navigate(2, "https://news.org/story")
	clk.Advance(10 * time.Second)
	tracker.Navigate(1, "https://example.com/b")
	clk.Advance(5 * time.Second)
	tracker.Idle()
	clk.Advance(time.Minute)
	tracker.Navigate(2, "https://news.org/other")
	clk.Advance(2 * time.Second)

	if uri, ok := svcs.ActiveURI.Current(); !ok || uri != "https://news.org/other" {
		t.Errorf("Current() = %q, %v", uri, ok)
	}
	if uri, _ := svcs.ActiveURI.Tab(1); uri != "https://example.com/b" {
		t.Errorf("Tab(1) = %q", uri)
	}
	if got := svcs.Hosts.Visits("example.com"); got != 2 {
		t.Errorf("Visits(example.com) = %d, want 2", got)
	}
	if got := svcs.DwellTime.Total("news.org"); got != 12*time.Second {
		t.Errorf("Total(news.org) = %v, want 12s", got)
	}

	for _, s := range []interface{ Shutdown(context.Context) error }{svcs.DwellTime, svcs.ActiveURI, svcs.Hosts} {
		if err := s.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	}

	checks := []struct {
		prefix, host string
		want         int64
	}{
		{HostsPrefix, "example.com", 2},
		{HostsPrefix, "news.org", 2},
		{DwellPrefix, "example.com", 35000},
		{DwellPrefix, "news.org", 12000},
	}
	for _, c := range checks {
		got, err := ReadCounter(ctx, store, c.prefix, c.host)
		if err != nil {
			t.Fatalf("ReadCounter() error = %v", err)
		}
		if got != c.want {
			t.Errorf("%s%s = %d, want %d", c.prefix, c.host, got, c.want)
		}
	}

	// Activity after shutdown is not recorded.
	tracker.Navigate(3, "https://example.com/c")
	if _, ok := svcs.ActiveURI.Current(); ok {
		t.Error("ActiveURI tracking after shutdown")
	}
}

func TestDwellTime_CloseFocusedTab(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	tracker := NewTracker(clk)
	store := newStore(t)
	d := NewDwellTime(tracker, store, nil)
	if err := d.Startup(ctx); err != nil {
		t.Fatal(err)
	}

	tracker.Navigate(1, "https://a.com")
	clk.Advance(3 * time.Second)
	tracker.Close(2) // not focused
	clk.Advance(2 * time.Second)
	tracker.Close(1)
	clk.Advance(time.Hour)

	if err := d.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := ReadCounter(ctx, store, DwellPrefix, "a.com")
	if got != 5000 {
		t.Errorf("dwell:a.com = %d, want 5000", got)
	}
}

func TestServices_ShutdownWithoutStartup(t *testing.T) {
	ctx := context.Background()
	svcs := NewServices(NewTracker(nil), storage.New(storage.DefaultConfig()), nil)

	if err := svcs.Hosts.Shutdown(ctx); err != nil {
		t.Errorf("Hosts.Shutdown() error = %v", err)
	}
	if err := svcs.ActiveURI.Shutdown(ctx); err != nil {
		t.Errorf("ActiveURI.Shutdown() error = %v", err)
	}
	if err := svcs.DwellTime.Shutdown(ctx); err != nil {
		t.Errorf("DwellTime.Shutdown() error = %v", err)
	}
}

func TestServices_PurgingShutdownDiscardsData(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	tracker := NewTracker(clk)
	store := newStore(t)
	svcs := NewServices(tracker, store, nil)

	if err := svcs.Hosts.Startup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svcs.DwellTime.Startup(ctx); err != nil {
		t.Fatal(err)
	}
	tracker.Navigate(1, "https://example.com/")
	clk.Advance(5 * time.Second)

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	purge := study.WithPurge(ctx)
	if err := svcs.DwellTime.Shutdown(purge); err != nil {
		t.Errorf("DwellTime.Shutdown() error = %v", err)
	}
	if err := svcs.Hosts.Shutdown(purge); err != nil {
		t.Errorf("Hosts.Shutdown() error = %v", err)
	}

	for _, prefix := range []string{HostsPrefix, DwellPrefix} {
		keys, err := store.Keys(ctx, prefix)
		if err != nil {
			t.Fatalf("Keys(%q) error = %v", prefix, err)
		}
		if len(keys) != 0 {
			t.Errorf("Keys(%q) = %v, want none", prefix, keys)
		}
	}
}

func TestFeed(t *testing.T) {
	tracker := NewTracker(nil)
	u := NewActiveURI(tracker)
	if err := u.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	input := strings.Join([]string{
		"# comment",
		"navigate 1 https://a.com",
		"",
		"navigate x https://b.com",
		"bogus",
		"navigate 2 https://c.com",
		"close 2",
	}, "\n")

	var bad []error
	if err := Feed(context.Background(), strings.NewReader(input), tracker, func(err error) {
		bad = append(bad, err)
	}); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	if len(bad) != 2 {
		t.Fatalf("bad lines = %v, want 2", bad)
	}
	for _, err := range bad {
		if !errors.Is(err, ErrBadCommand) {
			t.Errorf("error %v is not ErrBadCommand", err)
		}
	}
	if _, ok := u.Current(); ok {
		t.Error("Current() set after focused tab closed")
	}
	if uri, _ := u.Tab(1); uri != "https://a.com" {
		t.Errorf("Tab(1) = %q", uri)
	}
}
