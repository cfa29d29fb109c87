// Package runnertest provides a scripted CommandRunner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/dfkpanel/panel/runner"
)

// Response is what the mock returns for a command
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Call records one invocation
type Call struct {
	Args  []string
	Stdin string
}

// Line returns the joined argv
func (c Call) Line() string {
	return strings.Join(c.Args, " ")
}

// MockCommandRunner implements runner.CommandRunner. Responses are keyed by
// the space-joined argv; unknown commands get Default.
type MockCommandRunner struct {
	Responses map[string]Response
	Default   Response

	mu    sync.Mutex
	calls []Call
}

// NewMockCommandRunner creates a mock where every command succeeds
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{Responses: map[string]Response{}}
}

// On scripts the response for a command line
func (m *MockCommandRunner) On(line string, resp Response) *MockCommandRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Responses == nil {
		m.Responses = map[string]Response{}
	}
	m.Responses[line] = resp
	return m
}

// Fail scripts a non-zero exit for a command line
func (m *MockCommandRunner) Fail(line, stderr string) *MockCommandRunner {
	return m.On(line, Response{Stderr: stderr, ExitCode: 1})
}

// RunCommand records the call and returns the scripted response
func (m *MockCommandRunner) RunCommand(_ context.Context, cmd runner.Command) (runner.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := append([]string(nil), cmd.Args...)
	m.calls = append(m.calls, Call{Args: args, Stdin: cmd.Stdin})

	resp, ok := m.Responses[strings.Join(args, " ")]
	if !ok {
		resp = m.Default
	}
	result := runner.Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.Err != nil && result.ExitCode == 0 {
		result.ExitCode = -1
	}
	return result, resp.Err
}

// Calls returns every recorded invocation in order
func (m *MockCommandRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Lines returns the joined argv of every recorded invocation
func (m *MockCommandRunner) Lines() []string {
	calls := m.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.Line())
	}
	return lines
}

// Count returns how many times a command line was invoked
func (m *MockCommandRunner) Count(line string) int {
	n := 0
	for _, l := range m.Lines() {
		if l == line {
			n++
		}
	}
	return n
}
