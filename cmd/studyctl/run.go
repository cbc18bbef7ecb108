package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bft-labs/studyctl/internal/cliconfig"
	logpkg "github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/notify"
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/resources"
	"github.com/bft-labs/studyctl/pkg/study"
	"github.com/bft-labs/studyctl/plugins/optin"
	"github.com/bft-labs/studyctl/plugins/phases"
	"github.com/bft-labs/studyctl/plugins/storage"
	"github.com/bft-labs/studyctl/plugins/tracking"
)

// openPrefs opens the configured preference store. The returned close
// function is never nil.
func openPrefs(cfg cliconfig.Config) (prefs.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.PrefsBackend {
	case cliconfig.BackendBadger:
		s, err := prefs.OpenBadgerStore(filepath.Join(cfg.StateDir, "prefs"))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case cliconfig.BackendMemory:
		return prefs.NewMemoryStore(), noop, nil
	default:
		return prefs.NewFileStore(cfg.StateDir), noop, nil
	}
}

func run(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger) error {
	logger := logpkg.NewZerologAdapterWithLogger(log)
	startupReason, shutdownReason := cfg.Reasons()

	store, closePrefs, err := openPrefs(cfg)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer func() {
		if err := closePrefs(); err != nil {
			log.Warn().Err(err).Msg("closing preferences")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := notify.NewHub()
	trigger := notify.NewFileTrigger(cfg.UISentinel, cfg.UITopic, hub, logger.With(logpkg.String("component", "ui-trigger")))

	onEnd, ended := endNotifier(log)
	eligibility := optin.New(store, optin.Config{
		OptInKey: cfg.OptInKey,
		Prefix:   optin.DefaultPrefix,
		OnEnd:    onEnd,
		Logger: logger,
	})

	db := storage.New(storage.Config{Dir: cfg.StorageDir, Logger: logger})
	tracker := tracking.NewTracker(nil)
	svcs := tracking.NewServices(tracker, db, logger)
	scheduler := phases.New(store, phases.Config{
		Phases:        cfg.Phases,
		ExpirationKey: cfg.ExpirationKey,
		OnChange: func(phase string) {
			log.Info().Str("phase", phase).Msg("study phase")
		},
		Logger: logger,
	})

	opts := []study.Option{
		optin.WithProvider(eligibility),
		study.WithPrefs(store),
		study.WithSignal(hub),
		study.WithRegistrar(resources.NewRegistry()),
		storage.WithStorage(db),
		study.WithPhaseScheduler(scheduler),
		study.WithStateClearer(study.ClearAll(db, study.ClearPrefs(store, optin.DefaultPrefix))),
		study.WithLogger(logger),
		study.WithMetrics(prometheus.DefaultRegisterer),
	}
	opts = append(opts, tracking.WithTracking(svcs)...)

	c, err := study.New(study.Config{
		Phases:        cfg.Phases,
		ExpirationKey: cfg.ExpirationKey,
		ResourceID:    cfg.ResourceID,
		UITopic:       cfg.UITopic,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	data := study.ActivationData{
		ID:          cfg.StudyID,
		Version:     cfg.StudyVersion,
		InstallPath: cfg.InstallPath,
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := c.Startup(ctx, data, startupReason); err != nil {
		log.Error().Err(err).Msg("startup failed")
		report := c.Shutdown(ctx, data, shutdownReason)
		logReport(log, report)
		return fmt.Errorf("start study: %w", err)
	}
	// The hub only delivers to current subscribers, so the trigger starts
	// after a deferred start has subscribed.
	go func() {
		if err := trigger.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("ui trigger stopped")
		}
	}()

	log.Info().
		Str("state", c.State().String()).
		Bool("pending", c.Pending()).
		Msg("study started")

	if cfg.TrackingInput != "" {
		go feedTracking(ctx, cfg.TrackingInput, tracker, log)
	}

	select {
	case <-sigCh:
		log.Info().Msg("received signal, stopping...")
	case <-ended:
	}

	report := c.Shutdown(ctx, data, shutdownReason)
	logReport(log, report)
	return nil
}

// endNotifier returns an optin.Config OnEnd callback and a channel it
// closes, so ending the study stops the run the way a signal does.
func endNotifier(log zerolog.Logger) (func(reason string), <-chan struct{}) {
	ended := make(chan struct{})
	var once sync.Once
	return func(reason string) {
		log.Info().Str("reason", reason).Msg("study ended, shutting down")
		once.Do(func() { close(ended) })
	}, ended
}

func feedTracking(ctx context.Context, input string, tracker *tracking.Tracker, log zerolog.Logger) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			log.Warn().Err(err).Msg("opening tracking input")
			return
		}
		defer f.Close()
		r = f
	}
	err := tracking.Feed(ctx, r, tracker, func(err error) {
		log.Debug().Err(err).Msg("skipping tracking line")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("tracking feed stopped")
	}
}

func logReport(log zerolog.Logger, report study.ShutdownReport) {
	for _, step := range report.Steps {
		ev := log.Debug()
		switch {
		case step.Skipped:
		case step.Err != nil:
			ev = log.Warn().Err(step.Err)
		}
		ev.Str("step", step.Name).Bool("skipped", step.Skipped).Msg("shutdown step")
	}
	log.Info().
		Str("reason", report.Reason.String()).
		Strs("ran", report.Ran()).
		Int("failed", len(report.Failed())).
		Msg("study shut down")
}
