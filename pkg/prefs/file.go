package prefs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/juju/errors"
	toml "github.com/pelletier/go-toml/v2"
)

const prefsFileName = "prefs.toml"

// document is the on-disk layout of a FileStore.
type document struct {
	Prefs map[string]string `toml:"prefs"`
}

// FileStore implements Store as a single TOML file in a directory.
// Every mutation rewrites the file atomically.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a FileStore for the given directory. The directory
// is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the full path to the preferences file.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, prefsFileName)
}

func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := doc.Prefs[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	return f.update(func(p map[string]string) {
		p[key] = value
	})
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	return f.update(func(p map[string]string) {
		delete(p, key)
	})
}

func (f *FileStore) DeletePrefix(ctx context.Context, prefix string) error {
	return f.update(func(p map[string]string) {
		for k := range p {
			if strings.HasPrefix(k, prefix) {
				delete(p, k)
			}
		}
	})
}

func (f *FileStore) update(fn func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	fn(doc.Prefs)
	return f.save(doc)
}

// load reads the document. A missing file is an empty document.
func (f *FileStore) load() (document, error) {
	doc := document{Prefs: make(map[string]string)}

	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, errors.Annotate(err, "reading preferences")
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return doc, errors.Annotatef(err, "parsing %s", f.Path())
	}
	if doc.Prefs == nil {
		doc.Prefs = make(map[string]string)
	}
	return doc, nil
}

// save writes the document durably: fsync before rename.
func (f *FileStore) save(doc document) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return errors.Annotate(err, "creating preferences directory")
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Annotate(err, "encoding preferences")
	}

	pending, err := renameio.NewPendingFile(f.Path(), renameio.WithPermissions(0o600))
	if err != nil {
		return errors.Annotate(err, "creating pending preferences file")
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return errors.Annotate(err, "writing preferences")
	}
	return errors.Annotate(pending.CloseAtomicallyReplace(), "replacing preferences")
}
