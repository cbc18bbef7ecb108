package phases

import (
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/study"
)

// WithScheduler returns a study Option that schedules phases from store.
//
// Usage:
//
//	c, err := study.New(cfg,
//	    phases.WithScheduler(store, phases.Config{Phases: cfg.Phases}),
//	)
func WithScheduler(store prefs.Store, cfg Config) study.Option {
	return study.WithPhaseScheduler(New(store, cfg))
}
