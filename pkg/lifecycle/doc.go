// Package lifecycle holds the host lifecycle vocabulary and the study
// controller's state machine.
//
// The host invokes every entry point with a [Reason]. The controller moves
// through [State] values by firing [Event]s; [Next] is the pure transition
// function and [Manager] applies it under a lock, emitting change events.
//
// # State Machine
//
//	Unloaded -> Installed                 (any entry point)
//	Installed -> AwaitingUI               (cold application boot)
//	Installed -> Running                  (any other reason)
//	Installed -> Ineligible | Expired     (gate failed, absorbing)
//	AwaitingUI -> Running                 (UI ready)
//	any but ShuttingDown -> ShuttingDown  (shutdown)
//	ShuttingDown -> Unloaded
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
