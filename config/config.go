package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DFKPANEL_NGINX_SITES_DIR
const EnvPrefix = "DFKPANEL"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Exec    ExecConfig    `mapstructure:"exec"`
	Nginx   NginxConfig   `mapstructure:"nginx"`
	FTP     FTPConfig     `mapstructure:"ftp"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds the file explorer root and archive limits
type SandboxConfig struct {
	Root             string `mapstructure:"root"`
	MaxArchiveSizeMB int    `mapstructure:"max_archive_size_mb"`
}

// ExecConfig holds settings shared by every external command
type ExecConfig struct {
	SudoCommand       string `mapstructure:"sudo_command"`
	DefaultTimeoutSec int    `mapstructure:"default_timeout_sec"`
	MaxOutputKB       int    `mapstructure:"max_output_kb"`
}

// NginxConfig holds web server settings
type NginxConfig struct {
	ConfPath          string `mapstructure:"conf_path"`
	TestCmd           string `mapstructure:"test_cmd"`
	ReloadCmd         string `mapstructure:"reload_cmd"`
	FallbackReloadCmd string `mapstructure:"fallback_reload_cmd"`
	UseSudo           bool   `mapstructure:"use_sudo"`
	SitesDir          string `mapstructure:"sites_dir"`
	StagingDir        string `mapstructure:"staging_dir"`
	HelperPath        string `mapstructure:"helper_path"`
	FPMHost           string `mapstructure:"fpm_host"`
	FPMPort           int    `mapstructure:"fpm_port"`
	ClientMaxBody     string `mapstructure:"client_max_body"`
}

// FTPConfig holds FTP account settings
type FTPConfig struct {
	UseSudo        bool   `mapstructure:"use_sudo"`
	HomeBase       string `mapstructure:"home_base"`
	Shell          string `mapstructure:"shell"`
	PasswordLength int    `mapstructure:"password_length"`
	MinUID         int    `mapstructure:"min_uid"`
	MaxUID         int    `mapstructure:"max_uid"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode       string `mapstructure:"mode"`
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// legacyEnv maps configuration keys to the plain environment names
// deployments already use.
var legacyEnv = map[string]string{
	"sandbox.root":              "ROOT_DIR",
	"nginx.conf_path":           "NGINX_CONF",
	"nginx.test_cmd":            "NGINX_TEST_CMD",
	"nginx.reload_cmd":          "NGINX_RELOAD_CMD",
	"nginx.fallback_reload_cmd": "NGINX_FALLBACK_RELOAD",
	"nginx.use_sudo":            "NGINX_USE_SUDO",
	"nginx.sites_dir":           "NGINX_SITES_DIR",
	"nginx.fpm_host":            "FPM_HOST",
	"nginx.fpm_port":            "FPM_PORT",
	"nginx.client_max_body":     "NGINX_CLIENT_MAX_BODY",
	"ftp.use_sudo":              "FTP_USE_SUDO",
	"ftp.home_base":             "FTP_USER_HOME_BASE",
	"server.http_port":          "PORT",
}

// New loads and validates the application configuration
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding env %s: %w", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Test command depends on the configured main file
	if config.Nginx.TestCmd == "" {
		config.Nginx.TestCmd = "nginx -t -c " + config.Nginx.ConfPath
	}
	if config.Nginx.StagingDir == "" {
		config.Nginx.StagingDir = os.TempDir()
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 3000)

	v.SetDefault("sandbox.root", "/data")
	v.SetDefault("sandbox.max_archive_size_mb", 20)

	v.SetDefault("exec.sudo_command", "sudo -n")
	v.SetDefault("exec.default_timeout_sec", 10)
	v.SetDefault("exec.max_output_kb", 1024)

	v.SetDefault("nginx.conf_path", "/etc/nginx/nginx.conf")
	v.SetDefault("nginx.test_cmd", "")
	v.SetDefault("nginx.reload_cmd", "systemctl reload nginx")
	v.SetDefault("nginx.fallback_reload_cmd", "nginx -s reload")
	v.SetDefault("nginx.use_sudo", false)
	v.SetDefault("nginx.sites_dir", "/etc/nginx/sites-enabled")
	v.SetDefault("nginx.staging_dir", "")
	v.SetDefault("nginx.helper_path", "/usr/local/bin/dfkpanel-apply-site")
	v.SetDefault("nginx.fpm_host", "127.0.0.1")
	v.SetDefault("nginx.fpm_port", 9000)
	v.SetDefault("nginx.client_max_body", "128m")

	v.SetDefault("ftp.use_sudo", true)
	v.SetDefault("ftp.home_base", "/home")
	v.SetDefault("ftp.shell", "/bin/false")
	v.SetDefault("ftp.password_length", 12)
	v.SetDefault("ftp.min_uid", 1000)
	v.SetDefault("ftp.max_uid", 60000)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got: %d", c.Server.HTTPPort)
	}

	if c.Sandbox.Root == "" {
		return fmt.Errorf("sandbox.root must not be empty")
	}

	if c.Sandbox.MaxArchiveSizeMB <= 0 {
		return fmt.Errorf("sandbox.max_archive_size_mb must be positive, got: %d", c.Sandbox.MaxArchiveSizeMB)
	}

	if c.Exec.DefaultTimeoutSec <= 0 {
		return fmt.Errorf("exec.default_timeout_sec must be positive, got: %d", c.Exec.DefaultTimeoutSec)
	}

	if (c.Nginx.UseSudo || c.FTP.UseSudo) && len(c.SudoArgs()) == 0 {
		return fmt.Errorf("exec.sudo_command must be set when use_sudo is enabled")
	}

	for key, cmd := range map[string]string{
		"nginx.test_cmd":            c.Nginx.TestCmd,
		"nginx.reload_cmd":          c.Nginx.ReloadCmd,
		"nginx.fallback_reload_cmd": c.Nginx.FallbackReloadCmd,
	} {
		if len(strings.Fields(cmd)) == 0 {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	if !filepath.IsAbs(c.Nginx.SitesDir) {
		return fmt.Errorf("nginx.sites_dir must be an absolute path, got: %s", c.Nginx.SitesDir)
	}

	if c.Nginx.FPMPort <= 0 || c.Nginx.FPMPort > 65535 {
		return fmt.Errorf("nginx.fpm_port must be between 1 and 65535, got: %d", c.Nginx.FPMPort)
	}

	if !filepath.IsAbs(c.FTP.HomeBase) {
		return fmt.Errorf("ftp.home_base must be an absolute path, got: %s", c.FTP.HomeBase)
	}

	if c.FTP.PasswordLength < 8 {
		return fmt.Errorf("ftp.password_length must be at least 8, got: %d", c.FTP.PasswordLength)
	}

	if c.FTP.MinUID < 0 || c.FTP.MaxUID < c.FTP.MinUID {
		return fmt.Errorf("invalid ftp uid range: %d-%d", c.FTP.MinUID, c.FTP.MaxUID)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	return nil
}

// SudoArgs splits the configured elevation command into argv
func (c *Config) SudoArgs() []string {
	return strings.Fields(c.Exec.SudoCommand)
}

// TestArgs returns the nginx syntax check command as argv
func (c *Config) TestArgs() []string {
	return strings.Fields(c.Nginx.TestCmd)
}

// ReloadArgs returns the nginx reload command as argv
func (c *Config) ReloadArgs() []string {
	return strings.Fields(c.Nginx.ReloadCmd)
}

// FallbackReloadArgs returns the alternate reload command as argv
func (c *Config) FallbackReloadArgs() []string {
	return strings.Fields(c.Nginx.FallbackReloadCmd)
}

// GetDefaultTimeout returns the default command timeout as a duration
func (c *Config) GetDefaultTimeout() time.Duration {
	return time.Duration(c.Exec.DefaultTimeoutSec) * time.Second
}

// MaxArchiveBytes returns the archive import cap in bytes
func (c *Config) MaxArchiveBytes() int64 {
	return int64(c.Sandbox.MaxArchiveSizeMB) << 20
}

// MaxOutputBytes returns the per-stream output capture cap in bytes
func (c *Config) MaxOutputBytes() int {
	return c.Exec.MaxOutputKB << 10
}
