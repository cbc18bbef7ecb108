// Package phases schedules the study's phases. The schedule is anchored on
// the persisted deadline: the study began one study length before it, and
// each phase follows the previous one. The current phase is written to the
// preference store whenever it changes so that it survives restarts.
package phases

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/prefs"
	"github.com/bft-labs/studyctl/pkg/study"
)

// Done is the phase name after the last phase has ended.
const Done = "done"

// DefaultCurrentPhaseKey is where the current phase name is stored.
const DefaultCurrentPhaseKey = "extensions.pioneer-online-news.currentPhase"

// ErrNoDeadline is returned by Startup when no deadline has been persisted.
const ErrNoDeadline = errors.ConstError("no study deadline recorded")

// Config holds configuration options for the scheduler.
type Config struct {
	// Phases in order. Non-positive durations are skipped.
	Phases []expiration.Phase

	// ExpirationKey is the deadline preference.
	// Default: expiration.DefaultPrefKey
	ExpirationKey string

	// CurrentPhaseKey is where the current phase is stored.
	// Default: DefaultCurrentPhaseKey
	CurrentPhaseKey string

	// OnChange is called with the new phase name. Optional.
	OnChange func(phase string)

	// Clock drives the phase timer. Default: wall clock.
	Clock clock.Clock

	// Logger for scheduler messages. Default: no-op.
	Logger log.Logger
}

// Position is where a point in time falls in the schedule.
type Position struct {
	// Phase is the phase name, or Done.
	Phase string
	// Index is the phase's position in the configured list, -1 when Done.
	Index int
	// Next is when the phase ends. Zero when Done.
	Next time.Time
}

// Locate finds the phase containing now for a study that began at start.
// A time before start counts as the first phase.
func Locate(phases []expiration.Phase, start, now time.Time) Position {
	end := start
	for i, p := range phases {
		if p.Duration <= 0 {
			continue
		}
		end = end.Add(p.Duration)
		if now.Before(end) {
			return Position{Phase: p.Name, Index: i, Next: end}
		}
	}
	return Position{Phase: Done, Index: -1}
}

// Scheduler implements study.Service.
type Scheduler struct {
	store  prefs.Store
	cfg    Config
	clock  clock.Clock
	logger log.Logger

	mu      sync.Mutex
	current string
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(store prefs.Store, cfg Config) *Scheduler {
	if cfg.ExpirationKey == "" {
		cfg.ExpirationKey = expiration.DefaultPrefKey
	}
	if cfg.CurrentPhaseKey == "" {
		cfg.CurrentPhaseKey = DefaultCurrentPhaseKey
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Scheduler{
		store:  store,
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Startup records the current phase and starts the timer for the next one.
func (s *Scheduler) Startup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil
	}

	rec, ok, err := expiration.Load(ctx, s.store, s.cfg.ExpirationKey)
	if err != nil {
		return errors.Annotate(err, "loading deadline")
	}
	if !ok {
		return ErrNoDeadline
	}
	start := rec.Time().Add(-expiration.StudyLength(s.cfg.Phases))

	pos := Locate(s.cfg.Phases, start, s.clock.Now())
	if err := s.setPhase(ctx, pos.Phase); err != nil {
		return err
	}

	s.stop = make(chan struct{})
	if pos.Phase != Done {
		s.wg.Add(1)
		go s.run(start, pos, s.stop)
	}
	return nil
}

func (s *Scheduler) run(start time.Time, pos Position, stop <-chan struct{}) {
	defer s.wg.Done()
	ctx := context.Background()

	for pos.Phase != Done {
		select {
		case <-stop:
			return
		case <-s.clock.After(pos.Next.Sub(s.clock.Now())):
		}

		pos = Locate(s.cfg.Phases, start, s.clock.Now())
		s.mu.Lock()
		err := s.setPhase(ctx, pos.Phase)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("recording phase failed", log.String("phase", pos.Phase), log.Err(err))
		}
	}
}

// setPhase must be called with mu held.
func (s *Scheduler) setPhase(ctx context.Context, phase string) error {
	if phase == s.current {
		return nil
	}
	if err := s.store.Set(ctx, s.cfg.CurrentPhaseKey, phase); err != nil {
		return errors.Annotate(err, "recording phase")
	}
	s.logger.Info("study phase", log.String("phase", phase), log.String("previous", s.current))
	s.current = phase
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(phase)
	}
	return nil
}

// Shutdown stops the timer and waits for it to exit. When ctx is purging
// the recorded phase is removed, since the timer may have rewritten it
// after the state was cleared.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	s.wg.Wait()

	if study.Purging(ctx) {
		s.mu.Lock()
		s.current = ""
		s.mu.Unlock()
		return errors.Annotate(s.store.Delete(ctx, s.cfg.CurrentPhaseKey), "dropping phase")
	}
	return nil
}

// Current returns the phase recorded by the running scheduler.
func (s *Scheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
