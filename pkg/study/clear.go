package study

import (
	"context"
	stderrors "errors"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/prefs"
)

type purgeKey struct{}

// WithPurge marks ctx as belonging to a shutdown that clears per-user
// state. Shutdown sets it for reasons whose PurgesState is true.
func WithPurge(ctx context.Context) context.Context {
	return context.WithValue(ctx, purgeKey{}, true)
}

// Purging reports whether ctx belongs to a shutdown that clears per-user
// state. A service stopped with such a context drops buffered data
// instead of persisting it, since the state step has already run.
func Purging(ctx context.Context) bool {
	purge, _ := ctx.Value(purgeKey{}).(bool)
	return purge
}

type clearFunc func(ctx context.Context) error

func (f clearFunc) Clear(ctx context.Context) error { return f(ctx) }

// ClearAll returns a StateClearer that runs each of cs in order. A failure
// does not stop the rest; all failures are returned joined.
func ClearAll(cs ...StateClearer) StateClearer {
	return clearFunc(func(ctx context.Context) error {
		var errs []error
		for _, c := range cs {
			if c == nil {
				continue
			}
			if err := c.Clear(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return stderrors.Join(errs...)
	})
}

// ClearPrefs returns a StateClearer that deletes every preference under prefix.
func ClearPrefs(store prefs.Store, prefix string) StateClearer {
	return clearFunc(func(ctx context.Context) error {
		return errors.Annotatef(store.DeletePrefix(ctx, prefix), "clearing prefs %q", prefix)
	})
}
