package study_test

import (
	"context"
	"testing"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/study"
)

type failingClearer struct {
	calls int
	err   error
}

func (c *failingClearer) Clear(ctx context.Context) error {
	c.calls++
	return c.err
}

func TestClearAll_ContinuesPastFailures(t *testing.T) {
	first := &failingClearer{err: errBoom}
	second := &failingClearer{}

	err := study.ClearAll(first, nil, second).Clear(context.Background())

	if !errors.Is(err, errBoom) {
		t.Errorf("Clear() error = %v, want %v", err, errBoom)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first.calls, second.calls)
	}
}

func TestClearPrefs(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	_ = store.Set(ctx, "extensions.pioneer-online-news.expirationDateString", "1")
	_ = store.Set(ctx, "extensions.pioneer-online-news.endReason", "expired")
	_ = store.Set(ctx, "pioneer.optin", "true")

	if err := study.ClearPrefs(store, "extensions.pioneer-online-news.").Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if v, _, _ := prefs.GetBool(ctx, store, "pioneer.optin"); !v {
		t.Error("consent pref was cleared")
	}
}

func TestPurging(t *testing.T) {
	ctx := context.Background()
	if study.Purging(ctx) {
		t.Error("Purging(background) = true")
	}
	if !study.Purging(study.WithPurge(ctx)) {
		t.Error("Purging(WithPurge(ctx)) = false")
	}
}
