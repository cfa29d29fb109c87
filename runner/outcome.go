package runner

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// State is the terminal state of a plan run
type State string

// Terminal states
const (
	StateApplied             State = "applied"
	StateAppliedWithWarnings State = "applied_with_warnings"
	StateFailed              State = "failed"
	StateDegraded            State = "degraded_to_manual_instructions"
)

// Role tells why a step was executed
type Role string

// Step roles
const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
	RoleRollback Role = "rollback"
)

// StepError is an external command failure. It carries the captured output.
type StepError struct {
	Step    string
	Command []string
	Result  Result
	Err     error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %s: exit status %d", e.Step, e.Result.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepResult records one attempted step
type StepResult struct {
	Step     string        `json:"step" yaml:"step"`
	Role     Role          `json:"role" yaml:"role"`
	Command  []string      `json:"command" yaml:"command"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stdout   string        `json:"stdout" yaml:"stdout"`
	Stderr   string        `json:"stderr" yaml:"stderr"`
	TimedOut bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// OK reports whether the step succeeded
func (r StepResult) OK() bool {
	return r.err == nil
}

// Err returns the step failure, if any
func (r StepResult) Err() error {
	return r.err
}

// Outcome aggregates every attempted step of one or more plans
type Outcome struct {
	ID          string       `json:"id" yaml:"id"`
	Plan        string       `json:"plan" yaml:"plan"`
	State       State        `json:"state" yaml:"state"`
	FailedStep  string       `json:"failed_step,omitempty" yaml:"failed_step,omitempty"`
	ViaFallback bool         `json:"via_fallback" yaml:"via_fallback"`
	RolledBack  bool         `json:"rolled_back" yaml:"rolled_back"`
	Steps       []StepResult `json:"steps" yaml:"steps"`
	Warnings    []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Succeeded is true for Applied and AppliedWithWarnings
func (o *Outcome) Succeeded() bool {
	return o.State == StateApplied || o.State == StateAppliedWithWarnings
}

// Err combines the errors of every failed step when the outcome is Failed.
func (o *Outcome) Err() error {
	if o.State != StateFailed {
		return nil
	}
	var err error
	for _, step := range o.Steps {
		if step.err != nil {
			err = multierr.Append(err, step.err)
		}
	}
	if err == nil {
		err = fmt.Errorf("plan %s failed", o.Plan)
	}
	return err
}

// Warn records a warning and downgrades Applied to AppliedWithWarnings.
func (o *Outcome) Warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
	if o.State == StateApplied {
		o.State = StateAppliedWithWarnings
	}
}

// Append folds the steps of a later plan run into o. The later state wins
// unless o already failed or degraded; warnings survive.
func (o *Outcome) Append(next *Outcome) {
	if next == nil {
		return
	}
	o.Steps = append(o.Steps, next.Steps...)
	o.ViaFallback = o.ViaFallback || next.ViaFallback
	o.RolledBack = o.RolledBack || next.RolledBack
	warnings := append(o.Warnings, next.Warnings...)

	if o.State == StateFailed || o.State == StateDegraded {
		o.Warnings = warnings
		return
	}
	o.State = next.State
	o.FailedStep = next.FailedStep
	o.Warnings = warnings
	if o.State == StateApplied && len(o.Warnings) > 0 {
		o.State = StateAppliedWithWarnings
	}
}

// Stdout concatenates the stdout of every attempted step
func (o *Outcome) Stdout() string {
	parts := make([]string, 0, len(o.Steps))
	for _, step := range o.Steps {
		if step.Stdout != "" {
			parts = append(parts, strings.TrimRight(step.Stdout, "\n"))
		}
	}
	return strings.Join(parts, "\n")
}

// Stderr concatenates the stderr of every attempted step
func (o *Outcome) Stderr() string {
	parts := make([]string, 0, len(o.Steps))
	for _, step := range o.Steps {
		if step.Stderr != "" {
			parts = append(parts, strings.TrimRight(step.Stderr, "\n"))
		}
	}
	return strings.Join(parts, "\n")
}

// Report renders the operator-facing diagnostics: every attempted step with
// its command, status and captured output.
func (o *Outcome) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: %s", o.Plan, o.State)
	if o.ViaFallback {
		b.WriteString(" (via fallback)")
	}
	if o.RolledBack {
		b.WriteString(" (rolled back)")
	}
	b.WriteString("\n")

	for _, step := range o.Steps {
		status := "ok"
		if step.Error != "" {
			status = "failed: " + step.Error
		}
		fmt.Fprintf(&b, "- %s [%s] exit=%d %s\n  $ %s\n", step.Step, step.Role, step.ExitCode, status, strings.Join(step.Command, " "))
	}

	for _, w := range o.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}

	if out := o.Stdout(); out != "" {
		fmt.Fprintf(&b, "\nstdout:\n%s\n", out)
	}
	if errOut := o.Stderr(); errOut != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s\n", errOut)
	}
	return b.String()
}
