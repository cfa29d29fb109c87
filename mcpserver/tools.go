package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/nginx"
	"github.com/dfkpanel/panel/runner"
	"github.com/dfkpanel/panel/sandbox"
)

type outcomePayload struct {
	Outcome *runner.Outcome `json:"outcome"`
	Report  string          `json:"report"`
}

func newOutcomePayload(o *runner.Outcome) outcomePayload {
	return outcomePayload{Outcome: o, Report: o.Report()}
}

func (s *MCPServer) registerFileTools() {
	s.addTool("browse", "List a directory below the panel root", nil, map[string]any{
		"path": stringProperty("Directory path relative to the root (default: root)"),
	}, s.handleBrowse)

	s.addTool("read_file", "Read a file below the panel root", []string{"path"}, map[string]any{
		"path": stringProperty("File path relative to the root"),
	}, s.handleReadFile)

	s.addTool("write_file", "Write a file below the panel root", []string{"path", "content"}, map[string]any{
		"path":    stringProperty("File path relative to the root"),
		"content": stringProperty("New file content"),
	}, s.handleWriteFile)

	s.addTool("create_entry", "Create an empty file or a directory", []string{"name"}, map[string]any{
		"dir":  stringProperty("Parent directory relative to the root"),
		"name": stringProperty("Name of the new entry"),
		"type": map[string]any{
			"type":        "string",
			"description": "Entry type",
			"enum":        []string{sandbox.KindFile, sandbox.KindDir},
		},
	}, s.handleCreateEntry)

	s.addTool("delete_entry", "Delete a file or directory recursively", []string{"path"}, map[string]any{
		"path": stringProperty("Path relative to the root"),
	}, s.handleDeleteEntry)

	s.addTool("upload_file", "Store a file in a directory below the panel root", []string{"name", "content_base64"}, map[string]any{
		"dir":            stringProperty("Target directory relative to the root"),
		"name":           stringProperty("File name; only the base name is kept"),
		"content_base64": stringProperty("Base64-encoded file content"),
	}, s.handleUploadFile)

	s.addTool("import_archive", "Extract a tar.gz archive into a directory below the panel root", []string{"archive_base64"}, map[string]any{
		"dir":            stringProperty("Target directory relative to the root"),
		"archive_base64": stringProperty("Base64-encoded tar.gz archive"),
	}, s.handleImportArchive)

	s.addTool("export_archive", "Pack a directory below the panel root as tar.gz", nil, map[string]any{
		"path": stringProperty("Directory relative to the root (default: root)"),
	}, s.handleExportArchive)
}

func (s *MCPServer) registerNginxTools() {
	s.addTool("nginx_read_config", "Show the main nginx configuration file", nil, map[string]any{}, s.handleNginxReadConfig)

	s.addTool("nginx_reload", "Test the nginx configuration and reload it", nil, map[string]any{}, s.handleNginxReload)

	s.addTool("nginx_create_site", "Create, install and activate a server block for a domain", []string{"domain", "root"}, map[string]any{
		"domain":          stringProperty("Domain name, letters, digits, dot and hyphen only"),
		"root":            stringProperty("Absolute document root of the site"),
		"fpm_host":        stringProperty("FastCGI backend host (default from configuration)"),
		"fpm_port":        stringProperty("FastCGI backend port (default from configuration)"),
		"client_max_body": stringProperty("Request body size limit such as 128m"),
	}, s.handleNginxCreateSite)

	s.addTool("nginx_list_sites", "List the installed site configurations", nil, map[string]any{}, s.handleNginxListSites)
}

func (s *MCPServer) registerFTPTools() {
	s.addTool("ftp_list_users", "List host accounts that look like FTP accounts", nil, map[string]any{}, s.handleFTPListUsers)

	s.addTool("ftp_create_user", "Create an FTP account", []string{"username", "folder_path"}, map[string]any{
		"username":    stringProperty("Letters, digits and underscore only"),
		"folder_path": stringProperty("Home directory, relative to the panel root or absolute below it or the FTP home base"),
		"password":    stringProperty("Password to set; a random one is generated when empty"),
	}, s.handleFTPCreateUser)

	s.addTool("ftp_delete_user", "Delete an FTP account and its home directory", []string{"username"}, map[string]any{
		"username": stringProperty("Account name"),
	}, s.handleFTPDeleteUser)

	s.addTool("ftp_change_password", "Set a new password for an FTP account", []string{"username", "new_password"}, map[string]any{
		"username":     stringProperty("Account name"),
		"new_password": stringProperty("New password"),
	}, s.handleFTPChangePassword)
}

func (s *MCPServer) handleBrowse(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.explorer.List(request.GetString("path", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(listing, false)
}

func (s *MCPServer) handleReadFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}
	data, err := s.explorer.ReadFile(path)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(string(data)), nil
}

func (s *MCPServer) handleWriteFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}
	content, err := request.RequireString("content")
	if err != nil {
		return nil, fmt.Errorf("content parameter is required: %w", err)
	}
	if err := s.explorer.WriteFile(path, []byte(content)); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"path": path, "bytes": len(content)}, false)
}

func (s *MCPServer) handleCreateEntry(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}
	rel, err := s.explorer.Create(request.GetString("dir", ""), name, request.GetString("type", sandbox.KindFile))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"path": rel}, false)
}

func (s *MCPServer) handleDeleteEntry(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}
	parent, err := s.explorer.Delete(path)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"parent": parent}, false)
}

func (s *MCPServer) handleUploadFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}
	encoded, err := request.RequireString("content_base64")
	if err != nil {
		return nil, fmt.Errorf("content_base64 parameter is required: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content_base64: %w", err)
	}
	rel, err := s.explorer.Upload(request.GetString("dir", ""), name, data)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"path": rel, "bytes": len(data)}, false)
}

func (s *MCPServer) handleImportArchive(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	encoded, err := request.RequireString("archive_base64")
	if err != nil {
		return nil, fmt.Errorf("archive_base64 parameter is required: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode archive_base64: %w", err)
	}
	written, err := s.explorer.ImportArchive(request.GetString("dir", ""), data)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"written": written}, false)
}

func (s *MCPServer) handleExportArchive(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.explorer.ExportArchive(request.GetString("path", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"archive_base64": base64.StdEncoding.EncodeToString(data)}, false)
}

func (s *MCPServer) handleNginxReadConfig(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := s.sites.ReadConfig()
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(file, false)
}

func (s *MCPServer) handleNginxReload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome := s.sites.Reload(ctx)
	s.logger.Info("nginx reload finished",
		zap.String("state", string(outcome.State)),
		zap.Bool("via_fallback", outcome.ViaFallback))
	return jsonResult(newOutcomePayload(outcome), !outcome.Succeeded())
}

func (s *MCPServer) handleNginxCreateSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.sites.CreateSite(ctx, nginx.SiteRequest{
		Domain:      request.GetString("domain", ""),
		Root:        request.GetString("root", ""),
		BackendHost: request.GetString("fpm_host", ""),
		BackendPort: request.GetString("fpm_port", ""),
		BodyLimit:   request.GetString("client_max_body", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}

	payload := struct {
		*nginx.SiteResult
		Report string `json:"report"`
	}{SiteResult: result, Report: result.Outcome.Report()}
	if result.Manual != nil {
		payload.Report += "\n" + result.Manual.String()
	}
	return jsonResult(payload, result.Outcome.State == runner.StateFailed)
}

func (s *MCPServer) handleNginxListSites(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sites, err := s.sites.ListSites()
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sites, false)
}

func (s *MCPServer) handleFTPListUsers(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	users, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(users, false)
}

func (s *MCPServer) handleFTPCreateUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, outcome, err := s.accounts.CreateAccount(ctx, ftp.AccountRequest{
		Username: request.GetString("username", ""),
		HomePath: request.GetString("folder_path", ""),
		Password: request.GetString("password", ""),
	})
	if outcome == nil {
		return errorResult(err), nil
	}
	payload := struct {
		Account *ftp.Account `json:"account,omitempty"`
		outcomePayload
	}{Account: account, outcomePayload: newOutcomePayload(outcome)}
	return jsonResult(payload, err != nil)
}

func (s *MCPServer) handleFTPDeleteUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := s.accounts.DeleteAccount(ctx, request.GetString("username", ""))
	if outcome == nil {
		return errorResult(err), nil
	}
	return jsonResult(newOutcomePayload(outcome), err != nil)
}

func (s *MCPServer) handleFTPChangePassword(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := s.accounts.ChangePassword(ctx, request.GetString("username", ""), request.GetString("new_password", ""))
	if outcome == nil {
		return errorResult(err), nil
	}
	return jsonResult(newOutcomePayload(outcome), err != nil)
}
