package study

import (
	"github.com/bft-labs/studyctl/pkg/lifecycle"
)

// StepResult is the outcome of one shutdown step.
type StepResult struct {
	Name    string
	Err     error
	Skipped bool
}

// OK reports whether the step ran and succeeded.
func (r StepResult) OK() bool {
	return !r.Skipped && r.Err == nil
}

// ShutdownReport records every step Shutdown attempted, in order.
type ShutdownReport struct {
	Reason lifecycle.Reason
	Steps  []StepResult
}

// Ran returns the names of steps that were not skipped.
func (r ShutdownReport) Ran() []string {
	var names []string
	for _, s := range r.Steps {
		if !s.Skipped {
			names = append(names, s.Name)
		}
	}
	return names
}

// Failed returns the steps that returned an error.
func (r ShutdownReport) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Step looks up a step by name.
func (r ShutdownReport) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
