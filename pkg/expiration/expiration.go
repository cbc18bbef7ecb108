// Package expiration computes and persists the study's self-termination
// deadline.
//
// The deadline is written once, on the first startup that finds no usable
// value, as now plus the summed phase durations. After that it is only
// ever read, so the study can end earlier through consent revocation but
// never through the deadline drifting.
package expiration

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/prefs"
)

// DefaultPrefKey is the preference holding the deadline in epoch milliseconds.
const DefaultPrefKey = "extensions.pioneer-online-news.expirationDateString"

// Phase is one configured stage of the study.
type Phase struct {
	Name     string
	Duration time.Duration
}

// StudyLength sums phase durations. Non-positive durations count as zero.
func StudyLength(phases []Phase) time.Duration {
	var total time.Duration
	for _, p := range phases {
		if p.Duration > 0 {
			total += p.Duration
		}
	}
	return total
}

// Record is the deadline in epoch milliseconds.
type Record int64

// Time converts the record to a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(int64(r))
}

// IsExpired reports whether now is strictly past the deadline.
func IsExpired(r Record, now time.Time) bool {
	return now.UnixMilli() > int64(r)
}

// Ensure returns the stored deadline, creating it if absent. A stored value
// that is not an integer counts as absent. created reports whether a write
// happened; when the record already exists Ensure performs no write.
func Ensure(ctx context.Context, store prefs.Store, key string, clk clock.Clock, phases []Phase) (rec Record, created bool, err error) {
	v, ok, err := prefs.GetInt(ctx, store, key)
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	if ok {
		return Record(v), false, nil
	}

	deadline := clk.Now().UnixMilli() + StudyLength(phases).Milliseconds()
	if err := prefs.SetInt(ctx, store, key, deadline); err != nil {
		return 0, false, errors.Trace(err)
	}
	return Record(deadline), true, nil
}

// Load returns the stored deadline without creating one.
func Load(ctx context.Context, store prefs.Store, key string) (Record, bool, error) {
	v, ok, err := prefs.GetInt(ctx, store, key)
	if err != nil || !ok {
		return 0, false, errors.Trace(err)
	}
	return Record(v), true, nil
}
