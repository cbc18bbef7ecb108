package tracking

import (
	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/study"
)

// Services bundles the three tracking services over one tracker.
type Services struct {
	Tracker   *Tracker
	Hosts     *Hosts
	ActiveURI *ActiveURI
	DwellTime *DwellTime
}

// NewServices creates the tracking services over tracker, flushing to store.
func NewServices(tracker *Tracker, store Store, logger log.Logger) Services {
	return Services{
		Tracker:   tracker,
		Hosts:     NewHosts(tracker, store, logger),
		ActiveURI: NewActiveURI(tracker),
		DwellTime: NewDwellTime(tracker, store, logger),
	}
}

// WithTracking returns study Options binding s to the host-tracking,
// URI-tracking and dwell-time slots.
//
// Usage:
//
//	svcs := tracking.NewServices(tracking.NewTracker(nil), store, logger)
//	c, err := study.New(cfg, tracking.WithTracking(svcs)...)
func WithTracking(s Services) []study.Option {
	return []study.Option{
		study.WithHostTracking(s.Hosts),
		study.WithActiveURITracking(s.ActiveURI),
		study.WithDwellTime(s.DwellTime),
	}
}
