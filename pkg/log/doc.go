// Package log provides the logging abstraction used by studyctl components.
//
// Library packages never import a concrete logging library. They log through
// the Logger interface defined here, and the host (the studyctl CLI or an
// embedding application) decides where records go.
//
// # Usage
//
// Wrap a zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Or discard everything in tests:
//
//	logger := log.NewNoopLogger()
//
// Attach fields that should appear on every record of a scope:
//
//	logger = logger.With(log.String("activation", id))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
