// Package optin provides study eligibility backed by the preference store.
// A user is eligible while the consent preference is true. Ending the
// study records why and when under the study's preference prefix.
package optin

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/prefs"
)

// Defaults for Config.
const (
	DefaultOptInKey = "pioneer.optin"
	DefaultPrefix   = "extensions.pioneer-online-news."
)

const (
	endReasonSuffix = "endReason"
	endedAtSuffix   = "endedAt"
)

// Config holds configuration options for the opt-in provider.
type Config struct {
	// OptInKey is the boolean consent preference.
	// Default: "pioneer.optin"
	OptInKey string

	// Prefix is prepended to the keys the provider writes.
	// Default: "extensions.pioneer-online-news."
	Prefix string

	// OnEnd is called after the study has been ended. Optional.
	OnEnd func(reason string)

	// Clock stamps the end time. Default: wall clock.
	Clock clock.Clock

	// Logger for provider messages. Default: no-op.
	Logger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		OptInKey: DefaultOptInKey,
		Prefix:   DefaultPrefix,
	}
}

// Provider implements study.EligibilityProvider.
type Provider struct {
	store  prefs.Store
	cfg    Config
	logger log.Logger
	clock  clock.Clock
}

// Status is a snapshot of the user's participation.
type Status struct {
	OptedIn   bool
	EndReason string
	EndedAt   time.Time
}

// Ended reports whether the study has been ended for this user.
func (s Status) Ended() bool {
	return s.EndReason != ""
}

// New creates a provider over store.
func New(store prefs.Store, cfg Config) *Provider {
	def := DefaultConfig()
	if cfg.OptInKey == "" {
		cfg.OptInKey = def.OptInKey
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Provider{
		store:  store,
		cfg:    cfg,
		logger: logger,
		clock:  clk,
	}
}

// Startup checks the preference store is readable.
func (p *Provider) Startup(ctx context.Context) error {
	_, _, err := prefs.GetBool(ctx, p.store, p.cfg.OptInKey)
	return errors.Annotate(err, "reading consent")
}

// IsUserOptedIn reports the consent preference. An absent preference
// means the user never opted in.
func (p *Provider) IsUserOptedIn(ctx context.Context) (bool, error) {
	v, ok, err := prefs.GetBool(ctx, p.store, p.cfg.OptInKey)
	if err != nil {
		return false, errors.Annotate(err, "reading consent")
	}
	return ok && v, nil
}

// EndStudy records the end of participation.
func (p *Provider) EndStudy(ctx context.Context, reason string) error {
	now := p.clock.Now()
	if err := p.store.Set(ctx, p.key(endReasonSuffix), reason); err != nil {
		return errors.Annotate(err, "recording end reason")
	}
	if err := prefs.SetInt(ctx, p.store, p.key(endedAtSuffix), now.UnixMilli()); err != nil {
		return errors.Annotate(err, "recording end time")
	}

	p.logger.Info("study ended", log.String("end_reason", reason), log.Time("at", now))
	if p.cfg.OnEnd != nil {
		p.cfg.OnEnd(reason)
	}
	return nil
}

// SetOptIn writes the consent preference. Opting in clears a previous
// end record so a returning user starts fresh.
func (p *Provider) SetOptIn(ctx context.Context, optedIn bool) error {
	if err := prefs.SetBool(ctx, p.store, p.cfg.OptInKey, optedIn); err != nil {
		return errors.Annotate(err, "writing consent")
	}
	if !optedIn {
		return nil
	}
	for _, suffix := range []string{endReasonSuffix, endedAtSuffix} {
		if err := p.store.Delete(ctx, p.key(suffix)); err != nil && !errors.Is(err, prefs.ErrNotFound) {
			return errors.Annotate(err, "clearing end record")
		}
	}
	return nil
}

// Status reads the participation record.
func (p *Provider) Status(ctx context.Context) (Status, error) {
	var st Status

	optedIn, err := p.IsUserOptedIn(ctx)
	if err != nil {
		return st, err
	}
	st.OptedIn = optedIn

	reason, err := p.store.Get(ctx, p.key(endReasonSuffix))
	switch {
	case err == nil:
		st.EndReason = reason
	case !errors.Is(err, prefs.ErrNotFound):
		return st, errors.Annotate(err, "reading end reason")
	}

	at, ok, err := prefs.GetInt(ctx, p.store, p.key(endedAtSuffix))
	if err != nil {
		return st, errors.Annotate(err, "reading end time")
	}
	if ok {
		st.EndedAt = time.UnixMilli(at)
	}
	return st, nil
}

// EndReasonKey returns the preference the end reason is stored under.
func (p *Provider) EndReasonKey() string {
	return p.key(endReasonSuffix)
}

func (p *Provider) key(suffix string) string {
	return p.cfg.Prefix + suffix
}
