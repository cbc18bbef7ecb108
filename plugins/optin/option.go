package optin

import (
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/study"
)

// WithOptIn returns a study Option that uses an opt-in provider over store
// for eligibility.
//
// Usage:
//
//	c, err := study.New(cfg,
//	    optin.WithOptIn(store, optin.DefaultConfig()),
//	)
func WithOptIn(store prefs.Store, cfg Config) study.Option {
	return study.WithEligibility(New(store, cfg))
}

// WithProvider returns a study Option that uses p for eligibility.
func WithProvider(p *Provider) study.Option {
	return study.WithEligibility(p)
}
