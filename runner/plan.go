package runner

import (
	"strings"
	"time"
)

// PolicyKind says what happens when a step fails
type PolicyKind int

const (
	// PolicyFatal aborts the plan.
	PolicyFatal PolicyKind = iota
	// PolicyFallback runs the alternate step instead; the plan continues if it succeeds.
	PolicyFallback
	// PolicyRollback runs the alternate step to undo earlier work, then aborts.
	PolicyRollback
	// PolicyBestEffort records a warning and continues.
	PolicyBestEffort
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyFatal:
		return "fatal-on-failure"
	case PolicyFallback:
		return "try-fallback"
	case PolicyRollback:
		return "rollback"
	case PolicyBestEffort:
		return "best-effort"
	default:
		return "unknown"
	}
}

// Policy is the declared outcome policy of a step. Alternate is set for
// fallback and rollback policies only.
type Policy struct {
	Kind      PolicyKind
	Alternate *Step
}

// FatalOnFailure aborts the plan when the step fails.
func FatalOnFailure() Policy {
	return Policy{Kind: PolicyFatal}
}

// FallbackTo runs alternate when the step fails.
func FallbackTo(alternate Step) Policy {
	return Policy{Kind: PolicyFallback, Alternate: &alternate}
}

// RollbackVia runs undo when the step fails and then aborts.
func RollbackVia(undo Step) Policy {
	return Policy{Kind: PolicyRollback, Alternate: &undo}
}

// BestEffort continues past a failure with a warning.
func BestEffort() Policy {
	return Policy{Kind: PolicyBestEffort}
}

func (p Policy) String() string {
	if p.Alternate == nil {
		return p.Kind.String()
	}
	return p.Kind.String() + ":" + p.Alternate.Name
}

// Step is a named process invocation with a timeout and an outcome policy.
// Stdin is handed to the process but never recorded in results or logs.
type Step struct {
	Name    string
	Args    []string
	Stdin   string
	Timeout time.Duration
	Policy  Policy
}

// CommandLine renders Args for display. It is never executed.
func (s Step) CommandLine() string {
	return strings.Join(s.Args, " ")
}

// Plan is an ordered, dependency-gated sequence of steps
type Plan struct {
	Name  string
	Steps []Step
}
