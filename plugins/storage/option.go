package storage

import "github.com/bft-labs/studyctl/pkg/study"

// WithStorage returns a study Option that uses s as the storage service.
// s also becomes the state clearer unless one is set explicitly.
//
// Usage:
//
//	store := storage.New(storage.Config{Dir: "/var/lib/studyctl/storage"})
//	c, err := study.New(cfg, storage.WithStorage(store))
func WithStorage(s *Service) study.Option {
	return study.WithStorage(s)
}
