// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the panel operations as MCP tools using the
// mark3labs/mcp-go library: file tools confined to the panel root (browse,
// read_file, write_file, create_entry, delete_entry, upload_file,
// import_archive, export_archive), nginx tools (nginx_read_config,
// nginx_reload, nginx_create_site, nginx_list_sites) and FTP account tools
// (ftp_list_users, ftp_create_user, ftp_delete_user, ftp_change_password).
//
// Tool arguments are passed to the services unmodified; validation happens
// there. Results are JSON text; results of host commands carry every
// attempted step and an operator-readable report.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, explorer, sites, accounts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
