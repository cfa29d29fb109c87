package nginx

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/runner"
	"github.com/dfkpanel/panel/validation"
)

//go:embed templates/site.conf.tmpl
var siteTemplateText string

var siteTemplate = template.Must(template.New("site").Parse(siteTemplateText))

// StagingPrefix names staged site files: <staging_dir>/dfkpanel-<domain>.conf
const StagingPrefix = "dfkpanel-"

// SiteRequest is the untrusted input for a new site. Empty backend fields
// take the configured defaults.
type SiteRequest struct {
	Domain      string `json:"domain" yaml:"domain"`
	Root        string `json:"root" yaml:"root"`
	BackendHost string `json:"backend_host,omitempty" yaml:"backend_host,omitempty"`
	BackendPort string `json:"backend_port,omitempty" yaml:"backend_port,omitempty"`
	BodyLimit   string `json:"body_limit,omitempty" yaml:"body_limit,omitempty"`
}

// ManualInstructions tell the operator how to finish an install the panel
// could not complete. The commands are for display only.
type ManualInstructions struct {
	StagingPath   string   `json:"staging_path" yaml:"staging_path"`
	TargetPath    string   `json:"target_path" yaml:"target_path"`
	HelperCommand string   `json:"helper_command" yaml:"helper_command"`
	Commands      []string `json:"commands" yaml:"commands"`
}

// String renders the instructions as operator text
func (m *ManualInstructions) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The site configuration was written to %s\n\n", m.StagingPath)
	fmt.Fprintf(&b, "Option 1 - use the helper script (if installed):\n\n  %s\n\n", m.HelperCommand)
	b.WriteString("Option 2 - run these commands:\n\n")
	for _, cmd := range m.Commands {
		fmt.Fprintf(&b, "  %s\n", cmd)
	}
	return b.String()
}

// SiteResult describes what CreateSite did
type SiteResult struct {
	Domain        string              `json:"domain" yaml:"domain"`
	StagingPath   string              `json:"staging_path" yaml:"staging_path"`
	TargetPath    string              `json:"target_path" yaml:"target_path"`
	InstalledPath string              `json:"installed_path,omitempty" yaml:"installed_path,omitempty"`
	Config        string              `json:"config" yaml:"config"`
	Outcome       *runner.Outcome     `json:"outcome" yaml:"outcome"`
	Manual        *ManualInstructions `json:"manual,omitempty" yaml:"manual,omitempty"`
}

type site struct {
	Domain      string
	Root        string
	BackendHost string
	BackendPort int
	BodyLimit   string
}

// normalize applies defaults and validates every field. Nothing touches the
// host before it succeeds.
func (s *Service) normalize(req SiteRequest) (site, error) {
	out := site{
		Domain:      strings.TrimSpace(req.Domain),
		Root:        strings.TrimSpace(req.Root),
		BackendHost: strings.TrimSpace(req.BackendHost),
		BodyLimit:   strings.TrimSpace(req.BodyLimit),
	}
	port := strings.TrimSpace(req.BackendPort)

	if out.BackendHost == "" {
		out.BackendHost = s.cfg.Nginx.FPMHost
	}
	if port == "" {
		port = strconv.Itoa(s.cfg.Nginx.FPMPort)
	}
	if out.BodyLimit == "" {
		out.BodyLimit = s.cfg.Nginx.ClientMaxBody
	}

	if err := validation.Domain(out.Domain); err != nil {
		return site{}, err
	}
	if out.Root == "" {
		return site{}, validation.Invalidf("site root is required")
	}
	if err := validation.HostPath(out.Root); err != nil {
		return site{}, err
	}
	if err := validation.BackendHost(out.BackendHost); err != nil {
		return site{}, err
	}
	n, err := validation.Port(port)
	if err != nil {
		return site{}, err
	}
	out.BackendPort = n
	if err := validation.BodyLimit(out.BodyLimit); err != nil {
		return site{}, err
	}
	return out, nil
}

// RenderSite validates the request and returns the generated server block
// without touching the host.
func (s *Service) RenderSite(req SiteRequest) (string, error) {
	st, err := s.normalize(req)
	if err != nil {
		return "", err
	}
	return render(st)
}

func render(st site) (string, error) {
	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, st); err != nil {
		return "", fmt.Errorf("failed to render site config: %w", err)
	}
	return buf.String(), nil
}

// CreateSite writes a server block for a domain, installs it into the
// sites directory and reloads the server. When the install cannot be
// completed the staged file is left in place and the result carries manual
// instructions instead.
func (s *Service) CreateSite(ctx context.Context, req SiteRequest) (*SiteResult, error) {
	st, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("domain", st.Domain))

	var warnings []string
	if err := s.fs.MkdirAll(st.Root, 0o755); err != nil {
		log.Warn("failed to create site root", zap.String("root", st.Root), zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("site root %s could not be created: %v", st.Root, err))
	}

	text, err := render(st)
	if err != nil {
		return nil, err
	}

	stagingPath := filepath.Join(s.cfg.Nginx.StagingDir, StagingPrefix+st.Domain+".conf")
	if err := afero.WriteFile(s.fs, stagingPath, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("failed writing staging file %s: %w", stagingPath, err)
	}
	targetPath := filepath.Join(s.cfg.Nginx.SitesDir, st.Domain+".conf")

	result := &SiteResult{
		Domain:      st.Domain,
		StagingPath: stagingPath,
		TargetPath:  targetPath,
		Config:      text,
	}

	outcome := s.sequencer.Run(ctx, s.installPlan(stagingPath, targetPath))
	for _, w := range warnings {
		outcome.Warn(w)
	}
	result.Outcome = outcome

	if !outcome.Succeeded() {
		outcome.State = runner.StateDegraded
		result.Manual = s.manualInstructions(stagingPath, targetPath)
		log.Warn("automatic install failed, returning manual instructions",
			zap.String("staging_path", stagingPath),
			zap.String("failed_step", outcome.FailedStep))
		return result, nil
	}

	reload := s.Reload(ctx)
	// the copied file only counts as installed once the live config passes the check
	if reload.FailedStep != "test" {
		result.InstalledPath = targetPath
	}
	outcome.Append(reload)
	log.Info("site installed",
		zap.String("path", targetPath),
		zap.String("state", string(outcome.State)),
		zap.Bool("via_fallback", outcome.ViaFallback))
	return result, nil
}

func (s *Service) installPlan(stagingPath, targetPath string) runner.Plan {
	return runner.Plan{
		Name: "nginx-install-site",
		Steps: []runner.Step{
			{Name: "ensure-sites-dir", Args: []string{"mkdir", "-p", s.cfg.Nginx.SitesDir}, Timeout: InstallTimeout, Policy: runner.FatalOnFailure()},
			{Name: "copy", Args: []string{"cp", stagingPath, targetPath}, Timeout: InstallTimeout, Policy: runner.FatalOnFailure()},
			{Name: "chown", Args: []string{"chown", "root:root", targetPath}, Timeout: OwnershipTimeout, Policy: runner.BestEffort()},
			{Name: "chmod", Args: []string{"chmod", "644", targetPath}, Timeout: OwnershipTimeout, Policy: runner.BestEffort()},
		},
	}
}

func (s *Service) manualInstructions(stagingPath, targetPath string) *ManualInstructions {
	p := s.sequencer.Privilege().ShellPrefix()
	return &ManualInstructions{
		StagingPath:   stagingPath,
		TargetPath:    targetPath,
		HelperCommand: fmt.Sprintf("sudo %s %q", s.cfg.Nginx.HelperPath, stagingPath),
		Commands: []string{
			fmt.Sprintf("%smkdir -p %q", p, s.cfg.Nginx.SitesDir),
			fmt.Sprintf("%scp %q %q", p, stagingPath, targetPath),
			fmt.Sprintf("%schown root:root %q || true", p, targetPath),
			fmt.Sprintf("%schmod 644 %q || true", p, targetPath),
			p + s.cfg.Nginx.TestCmd,
			fmt.Sprintf("%s%s || %s%s", p, s.cfg.Nginx.ReloadCmd, p, s.cfg.Nginx.FallbackReloadCmd),
		},
	}
}
