// Package main is the entry point for the dfkpanel MCP server.
//
// The server exposes host administration tools over the Model Context
// Protocol: a file explorer confined to one root directory, nginx
// configuration reload and site provisioning, and FTP account management.
// Host changes run as external commands, optionally elevated with sudo.
// Both stdio and HTTP transports are supported.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
