package study_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/lifecycle"
	"github.com/bft-labs/studyctl/pkg/notify"
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/resources"
	"github.com/bft-labs/studyctl/pkg/study"
)

var (
	epoch   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

// callLog records calls across collaborators in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeService struct {
	name      string
	log       *callLog
	startErr  error
	stopErr   error
	stopPanic bool
}

func (s *fakeService) Startup(ctx context.Context) error {
	s.log.add("start:" + s.name)
	return s.startErr
}

func (s *fakeService) Shutdown(ctx context.Context) error {
	s.log.add("stop:" + s.name)
	if s.stopPanic {
		panic("teardown exploded")
	}
	return s.stopErr
}

type fakeEligibility struct {
	mu       sync.Mutex
	optedIn  bool
	queryErr error
	endErr   error
	ended    []string
}

func (f *fakeEligibility) Startup(ctx context.Context) error { return nil }

func (f *fakeEligibility) IsUserOptedIn(ctx context.Context) (bool, error) {
	return f.optedIn, f.queryErr
}

func (f *fakeEligibility) EndStudy(ctx context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, reason)
	return f.endErr
}

func (f *fakeEligibility) endedWith() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

// countingSignal wraps a real hub and counts registrations.
type countingSignal struct {
	*notify.Hub
	mu    sync.Mutex
	count int
}

func (s *countingSignal) Once(topic string, handler func()) *notify.Subscription {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return s.Hub.Once(topic, handler)
}

func (s *countingSignal) registrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type fakeClearer struct {
	log   *callLog
	store prefs.Store
}

func (c *fakeClearer) Clear(ctx context.Context) error {
	c.log.add("clear")
	return c.store.DeletePrefix(ctx, "")
}

type recordingHandler struct {
	study.BaseEventHandler
	mu          sync.Mutex
	transitions []string
	ended       []study.StudyEndedEvent
	failed      []study.StartupFailedEvent
}

func (h *recordingHandler) OnStateChange(e study.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, e.Previous.String()+"->"+e.Current.String())
}

func (h *recordingHandler) OnStudyEnded(e study.StudyEndedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, e)
}

func (h *recordingHandler) OnStartupFailed(e study.StartupFailedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, e)
}

type fixture struct {
	t        *testing.T
	log      *callLog
	elig     *fakeEligibility
	store    *prefs.MemoryStore
	signal   *countingSignal
	registry *resources.Registry
	clock    *testclock.Clock
	handler  *recordingHandler
	reg      *prometheus.Registry
	services map[string]*fakeService
	ctrl     *study.Controller
}

func newFixture(t *testing.T, opts ...study.Option) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		log:      &callLog{},
		elig:     &fakeEligibility{optedIn: true},
		store:    prefs.NewMemoryStore(),
		signal:   &countingSignal{Hub: notify.NewHub()},
		registry: resources.NewRegistry(),
		clock:    testclock.NewClock(epoch),
		handler:  &recordingHandler{},
		reg:      prometheus.NewRegistry(),
		services: make(map[string]*fakeService),
	}
	for _, name := range []string{
		study.StepStorage, study.StepHosts, study.StepActiveURI, study.StepDwellTime, study.StepPhases,
	} {
		f.services[name] = &fakeService{name: name, log: f.log}
	}

	base := []study.Option{
		study.WithEligibility(f.elig),
		study.WithPrefs(f.store),
		study.WithSignal(f.signal),
		study.WithRegistrar(f.registry),
		study.WithServices(study.Services{
			Storage:   f.services[study.StepStorage],
			Hosts:     f.services[study.StepHosts],
			ActiveURI: f.services[study.StepActiveURI],
			DwellTime: f.services[study.StepDwellTime],
			Phases:    f.services[study.StepPhases],
		}),
		study.WithStateClearer(&fakeClearer{log: f.log, store: f.store}),
		study.WithClock(f.clock),
		study.WithEventHandler(f.handler),
		study.WithMetrics(f.reg),
	}

	ctrl, err := study.New(study.DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.ctrl = ctrl
	return f
}

func (f *fixture) setExpiration(at time.Time) {
	f.t.Helper()
	if err := prefs.SetInt(context.Background(), f.store, expiration.DefaultPrefKey, at.UnixMilli()); err != nil {
		f.t.Fatalf("SetInt() error = %v", err)
	}
}

func (f *fixture) expirationPref() (int64, bool) {
	f.t.Helper()
	v, ok, err := prefs.GetInt(context.Background(), f.store, expiration.DefaultPrefKey)
	if err != nil {
		f.t.Fatalf("GetInt() error = %v", err)
	}
	return v, ok
}

var startOrder = []string{
	"start:storage", "start:hosts", "start:active-uri", "start:dwell-time", "start:phases",
}

var stopOrder = []string{
	"stop:dwell-time", "stop:active-uri", "stop:hosts", "stop:phases", "stop:storage",
}

var data = study.ActivationData{ID: "pioneer-study-online-news@mozilla.org", Version: "1.0.0"}

func TestStartup_DirectReasonsStartSynchronously(t *testing.T) {
	for _, reason := range lifecycle.Reasons {
		if reason == lifecycle.AppStartup {
			continue
		}
		t.Run(reason.String(), func(t *testing.T) {
			f := newFixture(t)

			if err := f.ctrl.Startup(context.Background(), data, reason); err != nil {
				t.Fatalf("Startup() error = %v", err)
			}

			if n := f.signal.registrations(); n != 0 {
				t.Errorf("registrations = %d, want 0", n)
			}
			if diff := cmp.Diff(startOrder, f.log.get()); diff != "" {
				t.Errorf("startup calls mismatch (-want +got):\n%s", diff)
			}
			if got := f.ctrl.State(); got != lifecycle.StateRunning {
				t.Errorf("State() = %v, want Running", got)
			}
			if !f.registry.IsRegistered(context.Background(), resources.DefaultPanelSheet, resources.AgentSheet) {
				t.Error("panel sheet not registered")
			}
		})
	}
}

func TestStartup_ColdBootWaitsForUIReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	if got := f.log.get(); len(got) != 0 {
		t.Fatalf("services started before ui-ready: %v", got)
	}
	if got := f.ctrl.State(); got != lifecycle.StateAwaitingUI {
		t.Fatalf("State() = %v, want AwaitingUI", got)
	}
	if !f.ctrl.Pending() {
		t.Fatal("Pending() = false, want true")
	}

	f.signal.Publish(notify.UIReadyTopic)
	if err := f.ctrl.Wait(time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if diff := cmp.Diff(startOrder, f.log.get()); diff != "" {
		t.Errorf("startup calls mismatch (-want +got):\n%s", diff)
	}
	if got := f.ctrl.State(); got != lifecycle.StateRunning {
		t.Errorf("State() = %v, want Running", got)
	}
	if f.ctrl.Pending() {
		t.Error("Pending() = true after delivery")
	}

	// A second delivery is not observed.
	f.signal.Publish(notify.UIReadyTopic)
	time.Sleep(20 * time.Millisecond)
	if got := len(f.log.get()); got != len(startOrder) {
		t.Errorf("calls after second publish = %d, want %d", got, len(startOrder))
	}

	f.ctrl.Shutdown(ctx, data, lifecycle.AppShutdown)
}

func TestStartup_AtMostOneRegistration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup)
	if !errors.Is(err, study.ErrAlreadyActive) {
		t.Fatalf("second Startup() error = %v, want ErrAlreadyActive", err)
	}
	if n := f.signal.registrations(); n != 1 {
		t.Errorf("registrations = %d, want 1", n)
	}

	f.ctrl.Shutdown(ctx, data, lifecycle.AppShutdown)
	if err := f.ctrl.Wait(time.Second); err != nil {
		t.Errorf("Wait() after shutdown error = %v", err)
	}
}

func TestStartup_Expired(t *testing.T) {
	f := newFixture(t)
	f.setExpiration(epoch.Add(-time.Millisecond))
	writes := f.store.Writes()

	if err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	if diff := cmp.Diff([]string{study.EndReasonExpired}, f.elig.endedWith()); diff != "" {
		t.Errorf("EndStudy reasons mismatch (-want +got):\n%s", diff)
	}
	if got := f.log.get(); len(got) != 0 {
		t.Errorf("services started: %v", got)
	}
	if got := f.ctrl.State(); got != lifecycle.StateExpired {
		t.Errorf("State() = %v, want Expired", got)
	}
	if got := f.store.Writes(); got != writes {
		t.Errorf("store writes = %d, want %d", got, writes)
	}
	if f.registry.IsRegistered(context.Background(), resources.DefaultPanelSheet, resources.AgentSheet) {
		t.Error("panel sheet registered for expired study")
	}
}

func TestStartup_DeadlineItselfIsNotExpired(t *testing.T) {
	f := newFixture(t)
	f.setExpiration(epoch)

	if err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if got := f.ctrl.State(); got != lifecycle.StateRunning {
		t.Errorf("State() = %v, want Running", got)
	}
}

func TestStartup_IneligibleRegardlessOfExpiration(t *testing.T) {
	tests := []struct {
		name   string
		stored *time.Time
	}{
		{name: "no record"},
		{name: "future record", stored: timePtr(epoch.Add(24 * time.Hour))},
		{name: "expired record", stored: timePtr(epoch.Add(-24 * time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.elig.optedIn = false
			if tt.stored != nil {
				f.setExpiration(*tt.stored)
			}

			if err := f.ctrl.Startup(context.Background(), data, lifecycle.AppStartup); err != nil {
				t.Fatalf("Startup() error = %v", err)
			}

			if diff := cmp.Diff([]string{study.EndReasonIneligible}, f.elig.endedWith()); diff != "" {
				t.Errorf("EndStudy reasons mismatch (-want +got):\n%s", diff)
			}
			if got := f.log.get(); len(got) != 0 {
				t.Errorf("services started: %v", got)
			}
			if n := f.signal.registrations(); n != 0 {
				t.Errorf("registrations = %d, want 0", n)
			}
			if got := f.ctrl.State(); got != lifecycle.StateIneligible {
				t.Errorf("State() = %v, want Ineligible", got)
			}
			if _, ok := f.expirationPref(); ok != (tt.stored != nil) {
				t.Errorf("expiration pref present = %v, want %v", ok, tt.stored != nil)
			}
		})
	}
}

func TestStartup_EndStudyErrorDoesNotFailStartup(t *testing.T) {
	f := newFixture(t)
	f.elig.optedIn = false
	f.elig.endErr = errBoom

	if err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v, want nil", err)
	}
	if got := f.ctrl.State(); got != lifecycle.StateIneligible {
		t.Errorf("State() = %v, want Ineligible", got)
	}
}

func TestStartup_EligibilityQueryError(t *testing.T) {
	f := newFixture(t)
	f.elig.queryErr = errBoom

	err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Startup() error = %v, want %v", err, errBoom)
	}
	if got := f.elig.endedWith(); len(got) != 0 {
		t.Errorf("EndStudy called with %v", got)
	}
	if got := f.log.get(); len(got) != 0 {
		t.Errorf("services started: %v", got)
	}
}

func TestStartup_GarbageExpirationIsRecomputed(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Set(context.Background(), expiration.DefaultPrefKey, "soon"); err != nil {
		t.Fatal(err)
	}

	if err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	got, ok := f.expirationPref()
	want := epoch.Add(30 * 24 * time.Hour).UnixMilli()
	if !ok || got != want {
		t.Errorf("expiration pref = %d (%v), want %d", got, ok, want)
	}
	if state := f.ctrl.State(); state != lifecycle.StateRunning {
		t.Errorf("State() = %v, want Running", state)
	}
}

func TestStartup_ExpirationIsStableAcrossActivations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AddonInstall); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	first, _ := f.ctrl.Expiration()
	f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)

	f.clock.Advance(72 * time.Hour)
	writes := f.store.Writes()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	second, ok := f.ctrl.Expiration()
	if !ok || second != first {
		t.Errorf("Expiration() = %d, want %d", second, first)
	}
	if got := f.store.Writes(); got != writes {
		t.Errorf("store writes = %d, want %d", got, writes)
	}
}

func TestStartup_FailFast(t *testing.T) {
	f := newFixture(t)
	f.services[study.StepHosts].startErr = errBoom
	ctx := context.Background()

	err := f.ctrl.Startup(ctx, data, lifecycle.AddonEnable)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Startup() error = %v, want %v", err, errBoom)
	}

	if diff := cmp.Diff([]string{"start:storage", "start:hosts"}, f.log.get()); diff != "" {
		t.Errorf("startup calls mismatch (-want +got):\n%s", diff)
	}
	if len(f.handler.failed) != 1 || f.handler.failed[0].Step != study.StepHosts {
		t.Errorf("startup failures = %+v, want one for hosts", f.handler.failed)
	}
	if n, err := testutil.GatherAndCount(f.reg, "studyctl_service_startup_failures_total"); err != nil || n != 1 {
		t.Errorf("startup failure series = %d (%v), want 1", n, err)
	}

	report := f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)
	want := []string{"stop:hosts", "stop:storage"}
	if diff := cmp.Diff(want, f.log.get()[2:]); diff != "" {
		t.Errorf("shutdown calls mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{study.StepDwellTime, study.StepActiveURI, study.StepPhases} {
		if s, _ := report.Step(name); !s.Skipped {
			t.Errorf("step %s not skipped", name)
		}
	}
}

func TestStartup_StorageFailureStopsEverything(t *testing.T) {
	f := newFixture(t)
	f.services[study.StepStorage].startErr = errBoom

	err := f.ctrl.Startup(context.Background(), data, lifecycle.AddonUpgrade)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Startup() error = %v, want %v", err, errBoom)
	}
	if diff := cmp.Diff([]string{"start:storage"}, f.log.get()); diff != "" {
		t.Errorf("startup calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStartup_ResourceAlreadyRegistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.registry.Register(ctx, resources.DefaultPanelSheet, resources.AgentSheet); err != nil {
		t.Fatal(err)
	}

	if err := f.ctrl.Startup(ctx, data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	report := f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)
	if s, _ := report.Step(study.StepResource); !s.OK() {
		t.Errorf("resource step = %+v, want ok", s)
	}
	if f.registry.IsRegistered(ctx, resources.DefaultPanelSheet, resources.AgentSheet) {
		t.Error("panel sheet still registered after shutdown")
	}
}

func TestStartup_UnknownReason(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Startup(context.Background(), data, lifecycle.Reason(42))
	if !errors.Is(err, lifecycle.ErrUnknownReason) {
		t.Fatalf("Startup() error = %v, want ErrUnknownReason", err)
	}
	if got := f.ctrl.State(); got != lifecycle.StateUnloaded {
		t.Errorf("State() = %v, want Unloaded", got)
	}
}

func TestShutdown_SafeInEveryState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name:  "never started",
			setup: func(f *fixture) {},
		},
		{
			name: "ineligible",
			setup: func(f *fixture) {
				f.elig.optedIn = false
				_ = f.ctrl.Startup(context.Background(), data, lifecycle.AppStartup)
			},
		},
		{
			name: "expired",
			setup: func(f *fixture) {
				f.setExpiration(epoch.Add(-time.Hour))
				_ = f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable)
			},
		},
		{
			name: "running",
			setup: func(f *fixture) {
				_ = f.ctrl.Startup(context.Background(), data, lifecycle.AddonEnable)
			},
		},
		{
			name: "awaiting ui",
			setup: func(f *fixture) {
				_ = f.ctrl.Startup(context.Background(), data, lifecycle.AppStartup)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			report := f.ctrl.Shutdown(context.Background(), data, lifecycle.AppShutdown)

			if failed := report.Failed(); len(failed) != 0 {
				t.Errorf("failed steps = %+v", failed)
			}
			if got := f.ctrl.State(); got != lifecycle.StateUnloaded {
				t.Errorf("State() = %v, want Unloaded", got)
			}
			if f.registry.IsRegistered(context.Background(), resources.DefaultPanelSheet, resources.AgentSheet) {
				t.Error("panel sheet still registered")
			}
			if err := f.ctrl.Wait(time.Second); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		})
	}
}

func TestShutdown_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.ctrl.Startup(ctx, data, lifecycle.AddonEnable)

	f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)
	report := f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)

	if ran := report.Ran(); len(ran) != 0 {
		t.Errorf("second shutdown ran %v, want nothing", ran)
	}
}

func TestShutdown_PurgeOnlyOnUninstall(t *testing.T) {
	tests := []struct {
		reason    lifecycle.Reason
		wantClear bool
	}{
		{lifecycle.AddonUninstall, true},
		{lifecycle.AddonDisable, false},
		{lifecycle.AppShutdown, false},
		{lifecycle.AddonUpgrade, false},
		{lifecycle.AddonDowngrade, false},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_ = f.ctrl.Startup(ctx, data, lifecycle.AddonEnable)

			report := f.ctrl.Shutdown(ctx, data, tt.reason)

			_, hasPref := f.expirationPref()
			if hasPref == tt.wantClear {
				t.Errorf("expiration pref present = %v after %s", hasPref, tt.reason)
			}
			step, _ := report.Step(study.StepState)
			if step.Skipped == tt.wantClear {
				t.Errorf("state step skipped = %v, want %v", step.Skipped, !tt.wantClear)
			}
		})
	}
}

func TestShutdown_UninstallAfterIneligibleStillClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setExpiration(epoch.Add(time.Hour))
	f.elig.optedIn = false
	_ = f.ctrl.Startup(ctx, data, lifecycle.AddonEnable)

	f.ctrl.Shutdown(ctx, data, lifecycle.AddonUninstall)

	if diff := cmp.Diff([]string{"clear"}, f.log.get()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestShutdown_FailingStepsDoNotStopLaterSteps(t *testing.T) {
	f := newFixture(t)
	f.services[study.StepDwellTime].stopErr = errBoom
	f.services[study.StepHosts].stopPanic = true
	ctx := context.Background()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AddonEnable); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	report := f.ctrl.Shutdown(ctx, data, lifecycle.AddonUninstall)

	want := append(append([]string{}, startOrder...), "clear")
	want = append(want, stopOrder...)
	if diff := cmp.Diff(want, f.log.get()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	var failed []string
	for _, s := range report.Failed() {
		failed = append(failed, s.Name)
	}
	if diff := cmp.Diff([]string{study.StepDwellTime, study.StepHosts}, failed); diff != "" {
		t.Errorf("failed steps mismatch (-want +got):\n%s", diff)
	}
	if f.registry.IsRegistered(ctx, resources.DefaultPanelSheet, resources.AgentSheet) {
		t.Error("panel sheet still registered")
	}
	if got := f.ctrl.State(); got != lifecycle.StateUnloaded {
		t.Errorf("State() = %v, want Unloaded", got)
	}
	if n, err := testutil.GatherAndCount(f.reg, "studyctl_shutdown_step_failures_total"); err != nil || n != 2 {
		t.Errorf("shutdown failure series = %d (%v), want 2", n, err)
	}
}

func TestShutdown_CancelsDeferredStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	report := f.ctrl.Shutdown(ctx, data, lifecycle.AppShutdown)
	if s, _ := report.Step(study.StepUISignal); !s.OK() {
		t.Errorf("ui-signal step = %+v, want ok", s)
	}

	f.signal.Publish(notify.UIReadyTopic)
	time.Sleep(20 * time.Millisecond)

	if got := f.log.get(); len(got) != 0 {
		t.Errorf("services started after shutdown: %v", got)
	}
	if f.ctrl.Pending() {
		t.Error("Pending() = true after shutdown")
	}
	if err := f.ctrl.Wait(time.Second); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestStateChangeEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.ctrl.Startup(ctx, data, lifecycle.AddonEnable)
	f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)

	want := []string{
		"Unloaded->Installed",
		"Installed->Running",
		"Running->ShuttingDown",
		"ShuttingDown->Unloaded",
	}
	if diff := cmp.Diff(want, f.handler.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestEndToEnd_ThirtyDayStudy(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	ctx := context.Background()

	f.ctrl.Install(ctx, data, lifecycle.AddonInstall)
	if err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	got, ok := f.expirationPref()
	if want := epoch.Add(30 * 24 * time.Hour).UnixMilli(); !ok || got != want {
		t.Fatalf("expiration pref = %d, want %d", got, want)
	}
	if rec, _ := f.ctrl.Expiration(); int64(rec) != got {
		t.Errorf("Expiration() = %d, want %d", rec, got)
	}

	f.signal.Publish(notify.UIReadyTopic)
	if err := f.ctrl.Wait(time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if diff := cmp.Diff(startOrder, f.log.get()); diff != "" {
		t.Fatalf("startup calls mismatch (-want +got):\n%s", diff)
	}

	report := f.ctrl.Shutdown(ctx, data, lifecycle.AddonDisable)
	if diff := cmp.Diff(stopOrder, f.log.get()[len(startOrder):]); diff != "" {
		t.Errorf("shutdown calls mismatch (-want +got):\n%s", diff)
	}
	wantRan := []string{
		study.StepDwellTime, study.StepActiveURI, study.StepHosts,
		study.StepPhases, study.StepStorage, study.StepResource,
	}
	if diff := cmp.Diff(wantRan, report.Ran()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if _, ok := f.expirationPref(); !ok {
		t.Error("disable cleared the expiration record")
	}

	// A month later the study ends itself on the next boot.
	f.clock.Advance(30*24*time.Hour + time.Second)
	if err := f.ctrl.Startup(ctx, data, lifecycle.AppStartup); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if got := f.ctrl.State(); got != lifecycle.StateExpired {
		t.Errorf("State() = %v, want Expired", got)
	}
	if diff := cmp.Diff([]string{study.EndReasonExpired}, f.elig.endedWith()); diff != "" {
		t.Errorf("EndStudy reasons mismatch (-want +got):\n%s", diff)
	}
	if len(f.handler.ended) != 1 || f.handler.ended[0].Expiration.UnixMilli() != got {
		t.Errorf("study ended events = %+v", f.handler.ended)
	}
	f.ctrl.Shutdown(ctx, data, lifecycle.AppShutdown)
	f.ctrl.Uninstall(ctx, data, lifecycle.AddonUninstall)
}

func TestNew_Validation(t *testing.T) {
	valid := func() []study.Option {
		return []study.Option{
			study.WithEligibility(&fakeEligibility{}),
			study.WithPrefs(prefs.NewMemoryStore()),
			study.WithSignal(notify.NewHub()),
			study.WithRegistrar(resources.NewRegistry()),
		}
	}

	tests := []struct {
		name    string
		cfg     study.Config
		opts    []study.Option
		wantErr bool
	}{
		{name: "defaults", opts: valid()},
		{name: "no eligibility", opts: valid()[1:], wantErr: true},
		{name: "no prefs", opts: []study.Option{
			study.WithEligibility(&fakeEligibility{}),
			study.WithSignal(notify.NewHub()),
			study.WithRegistrar(resources.NewRegistry()),
		}, wantErr: true},
		{name: "no registrar", opts: valid()[:3], wantErr: true},
		{name: "zero length study", cfg: study.Config{
			Phases: []expiration.Phase{{Name: "empty", Duration: 0}},
		}, opts: valid(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := study.New(tt.cfg, tt.opts...)
			if tt.wantErr {
				if !errors.Is(err, study.ErrInvalidConfig) {
					t.Errorf("New() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Errorf("New() error = %v", err)
			}
		})
	}
}

func TestModuleVersions(t *testing.T) {
	versions := study.ModuleVersions()
	for _, name := range []string{"study", "lifecycle", "prefs", "log"} {
		v, ok := versions[name]
		if !ok {
			t.Errorf("missing version for %s", name)
			continue
		}
		var major, minor, patch int
		if n, err := fmt.Sscanf(v, "%d.%d.%d", &major, &minor, &patch); err != nil || n != 3 {
			t.Errorf("version %q for %s is not semver: %v", v, name, err)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
