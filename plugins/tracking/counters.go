package tracking

import (
	"context"
	"strconv"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/plugins/storage"
)

// addCounters adds each delta to the integer stored under prefix+name.
func addCounters(ctx context.Context, store Store, prefix string, deltas map[string]int64) error {
	for name, delta := range deltas {
		if delta == 0 {
			continue
		}
		key := prefix + name
		current, err := readCounter(ctx, store, key)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, key, []byte(strconv.FormatInt(current+delta, 10))); err != nil {
			return errors.Annotatef(err, "writing %s", key)
		}
	}
	return nil
}

// readCounter returns the counter under key. Missing or garbage counts as zero.
func readCounter(ctx context.Context, store Store, key string) (int64, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Annotatef(err, "reading %s", key)
	}
	v, perr := strconv.ParseInt(string(raw), 10, 64)
	if perr != nil {
		return 0, nil
	}
	return v, nil
}

// ReadCounter returns a flushed counter, zero when absent.
func ReadCounter(ctx context.Context, store Store, prefix, name string) (int64, error) {
	return readCounter(ctx, store, prefix+name)
}
