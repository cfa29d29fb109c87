package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/ftp"
	"github.com/dfkpanel/panel/nginx"
	"github.com/dfkpanel/panel/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	explorer  *sandbox.Explorer
	sites     *nginx.Service
	accounts  *ftp.Service
	mcpServer *server.MCPServer
}

type toolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, explorer *sandbox.Explorer, sites *nginx.Service, accounts *ftp.Service) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		explorer: explorer,
		sites:    sites,
		accounts: accounts,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.root", explorer.Resolver().Root()),
		zap.Int("sandbox.max_archive_size_mb", cfg.Sandbox.MaxArchiveSizeMB),
		zap.String("nginx.conf_path", cfg.Nginx.ConfPath),
		zap.String("nginx.sites_dir", cfg.Nginx.SitesDir),
		zap.Bool("nginx.use_sudo", cfg.Nginx.UseSudo),
		zap.Bool("ftp.use_sudo", cfg.FTP.UseSudo),
		zap.String("ftp.home_base", cfg.FTP.HomeBase),
	)

	s.mcpServer = server.NewMCPServer("dfkpanel", "Host administration panel")

	s.registerFileTools()
	s.registerNginxTools()
	s.registerFTPTools()

	return s, nil
}

func (s *MCPServer) addTool(name, description string, required []string, properties map[string]any, handler toolHandler) {
	tool := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Info("tool called", zap.String("tool", name))
		return handler(ctx, request)
	})
}

func stringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	result := textResult(err.Error())
	result.IsError = true
	return result
}

// jsonResult encodes payload as the text content. failed marks the result
// as an error while still carrying the payload.
func jsonResult(payload any, failed bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	result := textResult(string(data))
	result.IsError = failed
	return result, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
