// Package runner executes external processes and sequences them into plans.
//
// A Plan is an ordered list of Steps. Each Step is a process invocation
// (argv, optional stdin, timeout) with a declared Policy that decides what
// happens when it fails:
//
//   - FatalOnFailure: abort the plan.
//   - FallbackTo(step): run an alternative; continue if it succeeds.
//   - RollbackVia(step): undo earlier work, then abort.
//   - BestEffort: record a warning and continue.
//
// The Sequencer runs steps strictly in order and returns an Outcome that
// records every attempted step with its command, exit status, stdout and
// stderr, so failures can be diagnosed without re-running anything.
//
// Usage:
//
//	seq := runner.NewSequencer(logger, runner.NewRealCommandRunner(),
//	    runner.WithPrivilege(runner.Privilege{Enabled: true, Command: []string{"sudo", "-n"}}))
//	outcome := seq.Run(ctx, runner.Plan{
//	    Name: "reload",
//	    Steps: []runner.Step{
//	        {Name: "test", Args: []string{"nginx", "-t"}, Policy: runner.FatalOnFailure()},
//	        {Name: "reload", Args: []string{"systemctl", "reload", "nginx"},
//	            Policy: runner.FallbackTo(runner.Step{Name: "signal", Args: []string{"nginx", "-s", "reload"}})},
//	    },
//	})
package runner
