package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultStepTimeout applies to steps that do not declare their own timeout.
const DefaultStepTimeout = 10 * time.Second

// Sequencer runs plans step by step, applying each step's policy on failure.
type Sequencer struct {
	logger         *zap.Logger
	runner         CommandRunner
	privilege      Privilege
	defaultTimeout time.Duration
}

// SequencerOption defines a functional option for Sequencer
type SequencerOption func(*Sequencer)

// WithPrivilege sets the elevation prefix applied to every step
func WithPrivilege(p Privilege) SequencerOption {
	return func(s *Sequencer) {
		s.privilege = p
	}
}

// WithDefaultTimeout sets the timeout used by steps without one
func WithDefaultTimeout(d time.Duration) SequencerOption {
	return func(s *Sequencer) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// NewSequencer creates a Sequencer executing through runner
func NewSequencer(logger *zap.Logger, runner CommandRunner, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		logger:         logger,
		runner:         runner,
		defaultTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Privilege returns the elevation settings of the sequencer
func (s *Sequencer) Privilege() Privilege {
	return s.privilege
}

// Run executes the plan. Steps run strictly one after another; a step never
// starts before the previous one, including its fallback or rollback, has
// finished. Nothing is retried beyond the declared alternate step.
//
// Cancelling ctx does not interrupt a started plan: the per-step timeout is
// the only deadline, so a rollback always gets to run.
func (s *Sequencer) Run(ctx context.Context, plan Plan) *Outcome {
	ctx = context.WithoutCancel(ctx)
	out := &Outcome{
		ID:    uuid.NewString(),
		Plan:  plan.Name,
		State: StateApplied,
		Steps: make([]StepResult, 0, len(plan.Steps)),
	}
	log := s.logger.With(zap.String("plan", plan.Name), zap.String("run_id", out.ID))
	log.Info("plan started", zap.Int("steps", len(plan.Steps)))

	for _, step := range plan.Steps {
		res := s.execute(ctx, log, step, RolePrimary)
		out.Steps = append(out.Steps, res)
		if res.OK() {
			continue
		}

		policy := step.Policy
		if (policy.Kind == PolicyFallback || policy.Kind == PolicyRollback) && policy.Alternate == nil {
			policy = FatalOnFailure()
		}

		switch policy.Kind {
		case PolicyBestEffort:
			out.Warn(fmt.Sprintf("%s: %s", step.Name, res.Error))
			log.Warn("best-effort step failed, continuing", zap.String("step", step.Name), zap.Error(res.err))

		case PolicyFallback:
			alt := s.execute(ctx, log, *policy.Alternate, RoleFallback)
			out.Steps = append(out.Steps, alt)
			if !alt.OK() {
				return s.fail(log, out, step.Name)
			}
			out.ViaFallback = true

		case PolicyRollback:
			undo := s.execute(ctx, log, *policy.Alternate, RoleRollback)
			out.Steps = append(out.Steps, undo)
			out.RolledBack = undo.OK()
			if !undo.OK() {
				out.Warnings = append(out.Warnings, fmt.Sprintf("rollback %s: %s", policy.Alternate.Name, undo.Error))
			}
			return s.fail(log, out, step.Name)

		default:
			return s.fail(log, out, step.Name)
		}
	}

	log.Info("plan finished",
		zap.String("state", string(out.State)),
		zap.Bool("via_fallback", out.ViaFallback),
		zap.Int("warnings", len(out.Warnings)))
	return out
}

func (s *Sequencer) fail(log *zap.Logger, out *Outcome, step string) *Outcome {
	out.State = StateFailed
	out.FailedStep = step
	log.Error("plan failed",
		zap.String("failed_step", step),
		zap.Bool("rolled_back", out.RolledBack),
		zap.Error(out.Err()))
	return out
}

func (s *Sequencer) execute(ctx context.Context, log *zap.Logger, step Step, role Role) StepResult {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	args := s.privilege.Apply(step.Args)

	log.Info("running step",
		zap.String("step", step.Name),
		zap.String("role", string(role)),
		zap.Strings("command", args),
		zap.Duration("timeout", timeout))

	started := time.Now()
	result, err := s.runner.RunCommand(ctx, Command{
		Args:    args,
		Stdin:   step.Stdin,
		Timeout: timeout,
	})

	res := StepResult{
		Step:     step.Name,
		Role:     role,
		Command:  args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		TimedOut: result.TimedOut,
		Duration: time.Since(started),
	}
	if err != nil || result.ExitCode != 0 {
		res.err = &StepError{Step: step.Name, Command: args, Result: result, Err: err}
		res.Error = res.err.Error()
		log.Warn("step failed",
			zap.String("step", step.Name),
			zap.String("role", string(role)),
			zap.Int("exit_code", result.ExitCode),
			zap.Bool("timed_out", result.TimedOut),
			zap.Error(err))
	}
	return res
}
