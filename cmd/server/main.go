package main

import (
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/logger"
	"github.com/dfkpanel/panel/mcpserver"
	"github.com/dfkpanel/panel/nginx"
	"github.com/dfkpanel/panel/runner"
	"github.com/dfkpanel/panel/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Host filesystem and process execution
			func() afero.Fs { return afero.NewOsFs() },
			newCommandRunner,

			// Root resolver and file explorer
			newResolver,
			newExplorer,

			// Host administration services
			newSiteService,
			ftp.New,

			// MCP Server
			mcpserver.New,
		),

		// Create the root directory once before serving
		fx.Invoke(func(resolver *sandbox.Resolver, fs afero.Fs, log *zap.Logger) error {
			if err := resolver.EnsureRoot(fs); err != nil {
				return err
			}
			log.Info("root directory ready", zap.String("root", resolver.Root()))
			return nil
		}),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func newCommandRunner(cfg *config.Config) runner.CommandRunner {
	r := runner.NewRealCommandRunner()
	r.MaxOutput = cfg.MaxOutputBytes()
	return r
}

func newResolver(cfg *config.Config) (*sandbox.Resolver, error) {
	return sandbox.NewResolver(cfg.Sandbox.Root)
}

func newExplorer(cfg *config.Config, log *zap.Logger, resolver *sandbox.Resolver, fs afero.Fs) *sandbox.Explorer {
	return sandbox.NewExplorer(log, resolver,
		sandbox.WithFileSystem(fs),
		sandbox.WithMaxArchiveBytes(cfg.MaxArchiveBytes()))
}

func newSiteService(cfg *config.Config, log *zap.Logger, cmdRunner runner.CommandRunner, fs afero.Fs) *nginx.Service {
	return nginx.New(cfg, log, cmdRunner, nginx.WithFileSystem(fs))
}
