// Package notify delivers named host notifications to the study.
//
// A [Hub] fans topics out to subscribers. [Hub.Once] registers interest in a
// single delivery and returns a [Subscription] handle owned by the caller;
// the handle deregisters itself before running the handler, so a handler
// can never run twice, and [Subscription.Cancel] is safe to call whether the
// subscription is pending, already fired, or already cancelled.
//
// [FileTrigger] bridges a host that signals by writing a sentinel file:
// it watches the file's directory with fsnotify and publishes a topic the
// first time the file appears.
package notify
