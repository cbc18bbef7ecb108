package notify

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
)

// Publisher is the part of Hub a FileTrigger needs.
type Publisher interface {
	Publish(topic string)
}

// FileTrigger publishes a topic once when a sentinel file appears.
type FileTrigger struct {
	path   string
	topic  string
	pub    Publisher
	logger log.Logger
}

// NewFileTrigger creates a trigger for the sentinel at path.
func NewFileTrigger(path, topic string, pub Publisher, logger log.Logger) *FileTrigger {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &FileTrigger{path: path, topic: topic, pub: pub, logger: logger}
}

// Run watches the sentinel's directory until the topic has been published
// or ctx ends. If the sentinel already exists it publishes immediately.
func (t *FileTrigger) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Annotate(err, "creating watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Annotatef(err, "creating %s", dir)
	}
	if err := watcher.Add(dir); err != nil {
		return errors.Annotatef(err, "watching %s", dir)
	}

	// Check after Add so a file created in between is not missed.
	if _, err := os.Stat(t.path); err == nil {
		t.publish("present at start")
		return nil
	}

	name := filepath.Base(t.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t.publish(event.Op.String())
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("sentinel watcher error", log.Err(err))
		}
	}
}

func (t *FileTrigger) publish(cause string) {
	t.logger.Info("host notification",
		log.String("topic", t.topic),
		log.String("sentinel", t.path),
		log.String("cause", cause),
	)
	t.pub.Publish(t.topic)
}
