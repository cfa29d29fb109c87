package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its timeout and is killed.
var ErrTimeout = errors.New("command timed out")

// DefaultMaxOutput caps the captured bytes per output stream.
const DefaultMaxOutput = 1 << 20

// Command is a single process invocation. Args is passed to the process as
// a discrete argument vector; no shell is involved.
type Command struct {
	Args    []string
	Stdin   string
	Timeout time.Duration
}

// Result holds what a finished process produced
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// CommandRunner defines an interface for executing system commands.
//
// A process that ran and exited non-zero is not an error: the exit code is
// reported in Result. An error means the process could not be started or was
// killed on timeout.
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) (Result, error)
}

// RealCommandRunner implements CommandRunner using os/exec
type RealCommandRunner struct {
	MaxOutput int
}

// NewRealCommandRunner creates a RealCommandRunner with the default output cap
func NewRealCommandRunner() *RealCommandRunner {
	return &RealCommandRunner{MaxOutput: DefaultMaxOutput}
}

// RunCommand executes the command, killing it when the timeout expires
func (r *RealCommandRunner) RunCommand(ctx context.Context, command Command) (Result, error) {
	if len(command.Args) < 1 || command.Args[0] == "" {
		return Result{}, fmt.Errorf("no command provided")
	}

	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...) //nolint:gosec // argv comes from validated plans
	cmd.WaitDelay = time.Second
	if command.Stdin != "" {
		cmd.Stdin = strings.NewReader(command.Stdin)
	}

	stdoutBuf := &limitedBuffer{limit: r.MaxOutput}
	stderrBuf := &limitedBuffer{limit: r.MaxOutput}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	err := cmd.Run()

	result := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %s", ErrTimeout, command.Timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}

	return result, nil
}

type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	if l.truncated {
		return l.buf.String() + "\n[output truncated]"
	}
	return l.buf.String()
}

// Privilege prepends an elevation command (for example "sudo -n") to every
// process a Sequencer runs when enabled.
type Privilege struct {
	Enabled bool
	Command []string
}

// Apply returns args with the elevation prefix when enabled
func (p Privilege) Apply(args []string) []string {
	if !p.Enabled || len(p.Command) == 0 {
		return args
	}
	elevated := make([]string, 0, len(p.Command)+len(args))
	elevated = append(elevated, p.Command...)
	return append(elevated, args...)
}

// ShellPrefix renders the prefix for human-readable commands, e.g. "sudo -n ".
func (p Privilege) ShellPrefix() string {
	if !p.Enabled || len(p.Command) == 0 {
		return ""
	}
	return strings.Join(p.Command, " ") + " "
}
