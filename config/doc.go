// Package config provides application configuration management.
//
// The config package loads the panel configuration from an optional YAML
// file (config.yaml in . or ./config, or the path in DFKPANEL_CONFIG) and
// the environment. Every key can be overridden with a DFKPANEL_ variable,
// e.g. DFKPANEL_NGINX_SITES_DIR; the plain names used by existing
// deployments (ROOT_DIR, NGINX_CONF, FTP_USE_SUDO, ...) are honored too.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sites directory: %s\n", cfg.Nginx.SitesDir)
package config
