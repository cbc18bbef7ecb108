package prefs

import (
	"context"
	"strconv"

	"github.com/juju/errors"
)

// ErrNotFound is returned by Get when the key has no value.
const ErrNotFound = errors.ConstError("preference not found")

// Store persists preferences.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// GetInt reads an integer preference. ok is false when the key is absent
// or holds something that is not a base-10 integer.
func GetInt(ctx context.Context, s Store, key string) (value int64, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Annotatef(err, "reading %s", key)
	}
	v, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil {
		return 0, false, nil
	}
	return v, true, nil
}

// SetInt stores an integer preference.
func SetInt(ctx context.Context, s Store, key string, value int64) error {
	return errors.Annotatef(s.Set(ctx, key, strconv.FormatInt(value, 10)), "writing %s", key)
}

// GetBool reads a boolean preference with the same absent semantics as GetInt.
func GetBool(ctx context.Context, s Store, key string) (value bool, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Annotatef(err, "reading %s", key)
	}
	v, perr := strconv.ParseBool(raw)
	if perr != nil {
		return false, false, nil
	}
	return v, true, nil
}

// SetBool stores a boolean preference.
func SetBool(ctx context.Context, s Store, key string, value bool) error {
	return errors.Annotatef(s.Set(ctx, key, strconv.FormatBool(value)), "writing %s", key)
}
