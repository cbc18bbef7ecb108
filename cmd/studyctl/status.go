package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bft-labs/studyctl/internal/cliconfig"
	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/plugins/optin"
	"github.com/bft-labs/studyctl/plugins/phases"
)

func newProvider(store prefs.Store, cfg cliconfig.Config) *optin.Provider {
	return optin.New(store, optin.Config{OptInKey: cfg.OptInKey, Prefix: optin.DefaultPrefix})
}

func printStatus(ctx context.Context, out io.Writer, cfg cliconfig.Config) error {
	store, closePrefs, err := openPrefs(cfg)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer closePrefs()

	st, err := newProvider(store, cfg).Status(ctx)
	if err != nil {
		return fmt.Errorf("read consent: %w", err)
	}
	rec, ok, err := expiration.Load(ctx, store, cfg.ExpirationKey)
	if err != nil {
		return fmt.Errorf("read deadline: %w", err)
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "study\t%s\n", cfg.StudyID)
	fmt.Fprintf(w, "opted in\t%v\n", st.OptedIn)
	if ok {
		deadline := rec.Time()
		fmt.Fprintf(w, "deadline\t%s\n", deadline.Format(time.RFC3339))
		fmt.Fprintf(w, "expired\t%v\n", expiration.IsExpired(rec, now))
		start := deadline.Add(-expiration.StudyLength(cfg.Phases))
		fmt.Fprintf(w, "phase\t%s\n", phases.Locate(cfg.Phases, start, now).Phase)
	} else {
		fmt.Fprintf(w, "deadline\tnot set\n")
	}
	if st.Ended() {
		fmt.Fprintf(w, "ended\t%s at %s\n", st.EndReason, st.EndedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func setOptIn(ctx context.Context, out io.Writer, cfg cliconfig.Config, optedIn bool) error {
	store, closePrefs, err := openPrefs(cfg)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer closePrefs()

	if err := newProvider(store, cfg).SetOptIn(ctx, optedIn); err != nil {
		return fmt.Errorf("set consent: %w", err)
	}
	fmt.Fprintf(out, "%s = %v\n", cfg.OptInKey, optedIn)
	return nil
}
