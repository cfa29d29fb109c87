package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/nginx"
	"github.com/dfkpanel/panel/runner/runnertest"
	"github.com/dfkpanel/panel/sandbox"
)

func newTestApp(t *testing.T, mock *runnertest.MockCommandRunner) (*app, afero.Fs) {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{Root: "/data", MaxArchiveSizeMB: 20},
		Exec:    config.ExecConfig{SudoCommand: "sudo -n", DefaultTimeoutSec: 10},
		Nginx: config.NginxConfig{
			ConfPath:          "/etc/nginx/nginx.conf",
			TestCmd:           "nginx -t",
			ReloadCmd:         "systemctl reload nginx",
			FallbackReloadCmd: "nginx -s reload",
			SitesDir:          "/etc/nginx/sites-enabled",
			StagingDir:        "/tmp",
			HelperPath:        "/usr/local/bin/dfkpanel-apply-site",
			FPMHost:           "127.0.0.1",
			FPMPort:           9000,
			ClientMaxBody:     "128m",
		},
		FTP: config.FTPConfig{HomeBase: "/home", Shell: "/bin/false", PasswordLength: 12, MinUID: 1000, MaxUID: 60000},
	}
	fs := afero.NewMemMapFs()
	resolver, err := sandbox.NewResolver(cfg.Sandbox.Root)
	require.NoError(t, err)
	require.NoError(t, resolver.EnsureRoot(fs))

	return &app{
		cfg:      cfg,
		logger:   log,
		explorer: sandbox.NewExplorer(log, resolver, sandbox.WithFileSystem(fs)),
		sites:    nginx.New(cfg, log, mock, nginx.WithFileSystem(fs)),
		accounts: ftp.New(cfg, log, mock, resolver),
	}, fs
}

func run(t *testing.T, a *app, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(func() (*app, error) { return a, nil })
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestFilesCommands(t *testing.T) {
	a, fs := newTestApp(t, runnertest.NewMockCommandRunner())
	require.NoError(t, afero.WriteFile(fs, "/data/site/index.php", []byte("<?php echo 1;"), 0o644))

	out, _, err := run(t, a, "", "files", "ls", "site")
	require.NoError(t, err)
	var listing sandbox.Listing
	require.NoError(t, yaml.Unmarshal([]byte(out), &listing))
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "index.php", listing.Entries[0].Name)

	out, _, err = run(t, a, "", "files", "cat", "site/index.php")
	require.NoError(t, err)
	assert.Equal(t, "<?php echo 1;", out)

	_, _, err = run(t, a, "", "files", "cat", "../etc/passwd")
	require.Error(t, err)
	assert.ErrorIs(t, err, sandbox.ErrOutsideRoot)
}

func TestNginxCommands(t *testing.T) {
	t.Run("CreateSiteDegraded", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner().Fail("cp /tmp/dfkpanel-example.com.conf /etc/nginx/sites-enabled/example.com.conf", "permission denied")
		a, _ := newTestApp(t, mock)

		out, stderr, err := run(t, a, "", "nginx", "create-site", "example.com", "/var/www/example")
		require.NoError(t, err)
		assert.Contains(t, out, "state: degraded_to_manual_instructions")
		assert.Contains(t, stderr, "dfkpanel-apply-site")
	})

	t.Run("ReloadFailureExitsNonZero", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner().Fail("nginx -t", "bad config")
		a, _ := newTestApp(t, mock)

		out, _, err := run(t, a, "", "nginx", "reload")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed at step test")
		assert.Contains(t, out, "bad config")
	})

	t.Run("RenderSiteRunsNothing", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner()
		a, _ := newTestApp(t, mock)

		out, _, err := run(t, a, "", "nginx", "render-site", "example.com", "/var/www/example", "--fpm-port", "9001")
		require.NoError(t, err)
		assert.Contains(t, out, "fastcgi_pass 127.0.0.1:9001;")
		assert.Empty(t, mock.Calls())
	})
}

func TestFTPCommands(t *testing.T) {
	t.Run("CreateWithPasswordFromStdin", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner()
		a, _ := newTestApp(t, mock)

		out, _, err := run(t, a, "typed-pass\n", "ftp", "create", "alice", "alice", "--password-stdin")
		require.NoError(t, err)
		assert.Contains(t, out, "username: alice")
		assert.Contains(t, out, "password: typed-pass")
		assert.Equal(t, "alice:typed-pass\n", mock.Calls()[1].Stdin)
	})

	t.Run("Passwd", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner()
		a, _ := newTestApp(t, mock)

		_, _, err := run(t, a, "n3w-pass\n", "ftp", "passwd", "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice:n3w-pass\n", mock.Calls()[0].Stdin)
	})

	t.Run("InvalidUsername", func(t *testing.T) {
		mock := runnertest.NewMockCommandRunner()
		a, _ := newTestApp(t, mock)

		_, _, err := run(t, a, "", "ftp", "delete", "bad-name")
		require.Error(t, err)
		assert.Empty(t, mock.Calls())
	})
}
