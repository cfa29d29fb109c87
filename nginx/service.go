package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/runner"
)

// Per-step timeouts
const (
	TestTimeout      = 10 * time.Second
	ReloadTimeout    = 10 * time.Second
	InstallTimeout   = 15 * time.Second
	OwnershipTimeout = 5 * time.Second
)

// ConfigFile is the main web server configuration as read from disk
type ConfigFile struct {
	Path      string `json:"path" yaml:"path"`
	ReloadCmd string `json:"reload_cmd" yaml:"reload_cmd"`
	Content   string `json:"content" yaml:"content"`
}

// SiteFile is one entry of the live sites directory
type SiteFile struct {
	Name    string    `json:"name" yaml:"name"`
	Domain  string    `json:"domain" yaml:"domain"`
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// Service manages the web server configuration through external commands
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	fs        afero.Fs
	sequencer *runner.Sequencer
}

// Option defines a functional option for Service
type Option func(*Service)

// WithFileSystem sets the filesystem used for staging and reading files
func WithFileSystem(fs afero.Fs) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// New creates a Service. Commands are elevated with the configured sudo
// command when nginx.use_sudo is set.
func New(cfg *config.Config, logger *zap.Logger, cmdRunner runner.CommandRunner, opts ...Option) *Service {
	log := logger.Named("nginx")
	s := &Service{
		cfg:    cfg,
		logger: log,
		fs:     afero.NewOsFs(),
		sequencer: runner.NewSequencer(log, cmdRunner,
			runner.WithPrivilege(runner.Privilege{Enabled: cfg.Nginx.UseSudo, Command: cfg.SudoArgs()}),
			runner.WithDefaultTimeout(cfg.GetDefaultTimeout()),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadConfig returns the content of the main configuration file
func (s *Service) ReadConfig() (*ConfigFile, error) {
	path := s.cfg.Nginx.ConfPath
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return &ConfigFile{Path: path, ReloadCmd: s.cfg.Nginx.ReloadCmd, Content: string(data)}, nil
}

// Reload checks the configuration and reloads the server with the
// configured commands.
func (s *Service) Reload(ctx context.Context) *runner.Outcome {
	return s.ApplyConfig(ctx, s.cfg.TestArgs(), s.cfg.ReloadArgs(), s.cfg.FallbackReloadArgs())
}

// ApplyConfig runs the syntax check, then the reload. A failed check stops
// everything; a failed reload is retried once through the fallback command.
func (s *Service) ApplyConfig(ctx context.Context, test, reload, fallback []string) *runner.Outcome {
	return s.sequencer.Run(ctx, reloadPlan(test, reload, fallback))
}

func reloadPlan(test, reload, fallback []string) runner.Plan {
	return runner.Plan{
		Name: "nginx-reload",
		Steps: []runner.Step{
			{Name: "test", Args: test, Timeout: TestTimeout, Policy: runner.FatalOnFailure()},
			{
				Name:    "reload",
				Args:    reload,
				Timeout: ReloadTimeout,
				Policy:  runner.FallbackTo(runner.Step{Name: "fallback-reload", Args: fallback, Timeout: ReloadTimeout}),
			},
		},
	}
}

// ListSites lists the configuration files in the live sites directory. A
// missing directory yields an empty list.
func (s *Service) ListSites() ([]SiteFile, error) {
	dir := s.cfg.Nginx.SitesDir
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SiteFile{}, nil
		}
		return nil, fmt.Errorf("failed to read sites directory %s: %w", dir, err)
	}

	sites := make([]SiteFile, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		sites = append(sites, SiteFile{
			Name:    info.Name(),
			Domain:  strings.TrimSuffix(info.Name(), ".conf"),
			Path:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}
