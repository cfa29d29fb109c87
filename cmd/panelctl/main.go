// Command panelctl runs the panel operations from a shell on the host,
// using the same configuration as the server. Results are printed as YAML.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/logger"
	"github.com/dfkpanel/panel/nginx"
	"github.com/dfkpanel/panel/runner"
	"github.com/dfkpanel/panel/sandbox"
)

// app holds the services a command needs; built once per invocation
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	explorer *sandbox.Explorer
	sites    *nginx.Service
	accounts *ftp.Service
}

func newApp() (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	resolver, err := sandbox.NewResolver(cfg.Sandbox.Root)
	if err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()
	cmdRunner := runner.NewRealCommandRunner()
	cmdRunner.MaxOutput = cfg.MaxOutputBytes()

	return &app{
		cfg:      cfg,
		logger:   log,
		explorer: sandbox.NewExplorer(log, resolver, sandbox.WithFileSystem(fs), sandbox.WithMaxArchiveBytes(cfg.MaxArchiveBytes())),
		sites:    nginx.New(cfg, log, cmdRunner, nginx.WithFileSystem(fs)),
		accounts: ftp.New(cfg, log, cmdRunner, resolver),
	}, nil
}

func main() {
	if err := newRootCmd(newApp).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(build func() (*app, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "panelctl",
		Short:         "Administer the host the way the panel does",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		filesCmd(build),
		nginxCmd(build),
		ftpCmd(build),
	)
	return rootCmd
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// printOutcome prints the outcome and turns a failed one into an error so
// the exit status reflects it.
func printOutcome(w io.Writer, v any, outcome *runner.Outcome) error {
	if err := printYAML(w, v); err != nil {
		return err
	}
	if outcome != nil && outcome.State == runner.StateFailed {
		return fmt.Errorf("%s failed at step %s", outcome.Plan, outcome.FailedStep)
	}
	return nil
}
