package controller

import (
	"slices"

	"skillforge/internal/reasoning"
)

// Status is the position of a run in the iteration state machine.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusCoding    Status = "coding"
	StatusTesting   Status = "testing"
	StatusAnalyzing Status = "analyzing"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	// StatusAnswered ends a run that needed no code.
	StatusAnswered Status = "answered"
)

// Terminal reports whether no further step runs.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusAnswered
}

// State is the context of one run. Steps never modify a State in place; they
// return the next one.
type State struct {
	RunID     string
	Goal      string
	SkillName string
	// Iteration is 1-based.
	Iteration int
	Status    Status

	Code       string
	SkillPath  string
	TestResult string
	Tested     bool
	TestPassed bool
	ExitCode   int
	// FailureLogged is set once the current attempt has a failure record.
	FailureLogged bool

	Verdict   string
	Feedback  string
	LastError string
	Answer    string

	History []reasoning.HistoryEntry
}

// with returns a copy of s changed by mutate.
func (s State) with(mutate func(*State)) State {
	next := s
	next.History = slices.Clone(s.History)
	mutate(&next)
	return next
}

// freshAttempt clears everything derived from the previous code.
func (s State) freshAttempt() State {
	return s.with(func(n *State) {
		n.Code = ""
		n.TestResult = ""
		n.Tested = false
		n.TestPassed = false
		n.ExitCode = 0
		n.FailureLogged = false
		n.Verdict = ""
	})
}

// withCode stores newly generated code and moves on to writing it.
func (s State) withCode(code string) State {
	return s.with(func(n *State) {
		n.Code = code
		n.Status = StatusCoding
		n.TestResult = ""
		n.Tested = false
		n.TestPassed = false
		n.ExitCode = 0
		n.FailureLogged = false
		n.Verdict = ""
	})
}

// failed ends the run.
func (s State) failed(reason string) State {
	return s.with(func(n *State) {
		n.Status = StatusFailed
		n.LastError = reason
	})
}

// recentHistory returns the last n history entries.
func (s State) recentHistory(n int) []reasoning.HistoryEntry {
	if n <= 0 || len(s.History) <= n {
		return slices.Clone(s.History)
	}
	return slices.Clone(s.History[len(s.History)-n:])
}
