// Package study is the lifecycle controller for an opt-in, time-boxed
// measurement study embedded in a host application.
//
// The host calls four entry points: [Controller.Install],
// [Controller.Startup], [Controller.Shutdown] and [Controller.Uninstall],
// each with a [lifecycle.Reason]. Startup runs an eligibility and
// expiration gate, then brings the subordinate services up in a fixed
// order. On a cold application boot the heavy part of startup waits for
// the host's UI-ready notification.
//
// # Basic Usage
//
//	c, err := study.New(study.DefaultConfig(),
//	    study.WithEligibility(provider),
//	    study.WithPrefs(store),
//	    study.WithSignal(hub),
//	    study.WithRegistrar(resources.NewRegistry()),
//	    study.WithServices(study.Services{
//	        Storage:   storage,
//	        Hosts:     hosts,
//	        ActiveURI: activeURI,
//	        DwellTime: dwellTime,
//	        Phases:    scheduler,
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	if err := c.Startup(ctx, data, lifecycle.AppStartup); err != nil {
//	    return err
//	}
//	// ... host publishes notify.UIReadyTopic ...
//	report := c.Shutdown(ctx, data, lifecycle.AddonDisable)
//
// # Gate
//
// The study ends with reason "ineligible" when the user is not opted in,
// and with "expired" once the persisted deadline has passed. Either way no
// subordinate service starts. The deadline is written on the first
// startup that finds none and is never moved.
//
// # Ordering
//
// Startup is fail-fast: resource registration, storage (awaited), hosts,
// active URI, dwell time, phases. Shutdown is best-effort: every step runs
// even if an earlier one failed, and Shutdown never returns an error. The
// [ShutdownReport] it returns records each step's outcome.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package study
