package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "http",
			HTTPPort:  3000,
		},
		Sandbox: SandboxConfig{
			Root:             "/data",
			MaxArchiveSizeMB: 20,
		},
		Exec: ExecConfig{
			SudoCommand:       "sudo -n",
			DefaultTimeoutSec: 10,
		},
		Nginx: NginxConfig{
			ConfPath:          "/etc/nginx/nginx.conf",
			TestCmd:           "nginx -t",
			ReloadCmd:         "systemctl reload nginx",
			FallbackReloadCmd: "nginx -s reload",
			SitesDir:          "/etc/nginx/sites-enabled",
			FPMHost:           "127.0.0.1",
			FPMPort:           9000,
			ClientMaxBody:     "128m",
		},
		FTP: FTPConfig{
			UseSudo:        true,
			HomeBase:       "/home",
			Shell:          "/bin/false",
			PasswordLength: 12,
			MinUID:         1000,
			MaxUID:         60000,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 70000 }, "server.http_port"},
		{"EmptyRoot", func(c *Config) { c.Sandbox.Root = "" }, "sandbox.root must not be empty"},
		{"InvalidArchiveSize", func(c *Config) { c.Sandbox.MaxArchiveSizeMB = 0 }, "sandbox.max_archive_size_mb must be positive"},
		{"InvalidTimeout", func(c *Config) { c.Exec.DefaultTimeoutSec = 0 }, "exec.default_timeout_sec must be positive"},
		{"SudoWithoutCommand", func(c *Config) { c.Exec.SudoCommand = " " }, "exec.sudo_command"},
		{"EmptyReloadCommand", func(c *Config) { c.Nginx.ReloadCmd = "" }, "nginx.reload_cmd must not be empty"},
		{"RelativeSitesDir", func(c *Config) { c.Nginx.SitesDir = "sites" }, "nginx.sites_dir must be an absolute path"},
		{"InvalidFPMPort", func(c *Config) { c.Nginx.FPMPort = 0 }, "nginx.fpm_port"},
		{"RelativeHomeBase", func(c *Config) { c.FTP.HomeBase = "home" }, "ftp.home_base must be an absolute path"},
		{"ShortPassword", func(c *Config) { c.FTP.PasswordLength = 4 }, "ftp.password_length"},
		{"InvalidUIDRange", func(c *Config) { c.FTP.MaxUID = 10 }, "invalid ftp uid range"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "/data", cfg.Sandbox.Root)
	assert.Equal(t, "/etc/nginx/nginx.conf", cfg.Nginx.ConfPath)
	assert.Equal(t, []string{"nginx", "-t", "-c", "/etc/nginx/nginx.conf"}, cfg.TestArgs())
	assert.Equal(t, []string{"systemctl", "reload", "nginx"}, cfg.ReloadArgs())
	assert.Equal(t, []string{"nginx", "-s", "reload"}, cfg.FallbackReloadArgs())
	assert.Equal(t, "/etc/nginx/sites-enabled", cfg.Nginx.SitesDir)
	assert.Equal(t, os.TempDir(), cfg.Nginx.StagingDir)
	assert.Equal(t, "127.0.0.1", cfg.Nginx.FPMHost)
	assert.Equal(t, 9000, cfg.Nginx.FPMPort)
	assert.Equal(t, "128m", cfg.Nginx.ClientMaxBody)
	assert.False(t, cfg.Nginx.UseSudo)
	assert.True(t, cfg.FTP.UseSudo)
	assert.Equal(t, "/home", cfg.FTP.HomeBase)
	assert.Equal(t, 12, cfg.FTP.PasswordLength)
	assert.Equal(t, []string{"sudo", "-n"}, cfg.SudoArgs())
	assert.Equal(t, int64(20<<20), cfg.MaxArchiveBytes())
	assert.Equal(t, 1<<20, cfg.MaxOutputBytes())
}

func TestConfigEnvironment(t *testing.T) {
	t.Run("LegacyNames", func(t *testing.T) {
		t.Setenv("ROOT_DIR", "/srv/data")
		t.Setenv("NGINX_CONF", "/opt/nginx/nginx.conf")
		t.Setenv("NGINX_USE_SUDO", "true")
		t.Setenv("FPM_PORT", "9001")
		t.Setenv("FTP_USER_HOME_BASE", "/srv/ftp")
		t.Setenv("PORT", "8081")

		cfg, err := load(viper.New())
		require.NoError(t, err)
		assert.Equal(t, "/srv/data", cfg.Sandbox.Root)
		assert.Equal(t, "/opt/nginx/nginx.conf", cfg.Nginx.ConfPath)
		assert.Equal(t, []string{"nginx", "-t", "-c", "/opt/nginx/nginx.conf"}, cfg.TestArgs())
		assert.True(t, cfg.Nginx.UseSudo)
		assert.Equal(t, 9001, cfg.Nginx.FPMPort)
		assert.Equal(t, "/srv/ftp", cfg.FTP.HomeBase)
		assert.Equal(t, 8081, cfg.Server.HTTPPort)
	})

	t.Run("PrefixedNamesWin", func(t *testing.T) {
		t.Setenv("NGINX_SITES_DIR", "/legacy/sites")
		t.Setenv("DFKPANEL_NGINX_SITES_DIR", "/prefixed/sites")
		t.Setenv("DFKPANEL_LOGGING_LEVEL", "debug")

		cfg, err := load(viper.New())
		require.NoError(t, err)
		assert.Equal(t, "/prefixed/sites", cfg.Nginx.SitesDir)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("InvalidValueFailsValidation", func(t *testing.T) {
		t.Setenv("DFKPANEL_SERVER_TRANSPORT", "carrier-pigeon")
		_, err := load(viper.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})
}

func TestConfigFile(t *testing.T) {
	data, err := yaml.Marshal(map[string]any{
		"server": map[string]any{"transport": "http", "http_port": 9090},
		"nginx": map[string]any{
			"test_cmd":  "/usr/sbin/nginx -t",
			"sites_dir": "/etc/nginx/conf.d",
		},
		"ftp": map[string]any{"use_sudo": false, "password_length": 16},
	})
	require.NoError(t, err)

	t.Run("ReadConfig", func(t *testing.T) {
		v := viper.New()
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

		cfg, err := load(v)
		require.NoError(t, err)
		assert.Equal(t, "http", cfg.Server.Transport)
		assert.Equal(t, 9090, cfg.Server.HTTPPort)
		assert.Equal(t, []string{"/usr/sbin/nginx", "-t"}, cfg.TestArgs())
		assert.Equal(t, "/etc/nginx/conf.d", cfg.Nginx.SitesDir)
		assert.False(t, cfg.FTP.UseSudo)
		assert.Equal(t, 16, cfg.FTP.PasswordLength)
	})

	t.Run("ExplicitPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "panel.yaml")
		require.NoError(t, os.WriteFile(path, data, 0o600))
		t.Setenv(EnvPrefix+"_CONFIG", path)

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.HTTPPort)
	})
}
