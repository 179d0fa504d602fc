package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/tiltlink/api"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// Health mirrors the /api/health response
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"tiltlink",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`tiltlink - MCP Interface

This is a thin client that proxies all requests to the tiltlink REST API server.

A desktop browser hosts a game and gets a 4 character code. A phone joins with
that code and its tilt moves are relayed to the desktop. Sessions live only as
long as the desktop connection.

AVAILABLE TOOLS:
- list_sessions: List active sessions, optionally only paired or waiting ones
- get_session: Get details of one session by code
- server_health: Active sessions and connected clients
- join_url: The link (and QR code link) a phone opens to join a session

All tools are read-only; sessions cannot be created or ended from here.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List active pairing sessions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paired": map[string]interface{}{
					"type":        "boolean",
					"description": "Only sessions with (true) or without (false) a joined phone (optional)",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Game code shown on the desktop",
				},
			},
			Required: []string{"code"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_health",
		Description: "Report server status, active sessions and connected clients",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerHealth)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_url",
		Description: "Get the URL a phone opens to join a session, plus a link to its QR code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Game code shown on the desktop",
				},
			},
			Required: []string{"code"},
		},
	}, c.handleJoinURL)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool arguments as a map, tolerating a missing object
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func codeArgument(request mcp.CallToolRequest) (string, error) {
	code, _ := arguments(request)["code"].(string)
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("code is required")
	}
	return code, nil
}

// Tool handlers

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/sessions"
	if paired, ok := arguments(request)["paired"].(bool); ok {
		path += fmt.Sprintf("?paired=%t", paired)
	}

	var response struct {
		Count    int               `json:"count"`
		Sessions []api.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionList(response.Count, response.Sessions)), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := codeArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info api.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(code), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleServerHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var health Health
	if err := c.apiCall(ctx, "GET", "/api/health", nil, &health); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Status: %s\nActive sessions: %d\nConnected clients: %d\n",
		health.Status, health.Sessions, health.Clients)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleJoinURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := codeArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info api.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(code), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if info.Paired {
		return mcp.NewToolResultError(fmt.Sprintf("session %s already has a phone joined", info.Code)), nil
	}

	result := fmt.Sprintf("Join URL: %s\nQR code: %s/api/sessions/%s/qr\n", info.JoinURL, c.baseURL, info.Code)
	return mcp.NewToolResultText(result), nil
}

func formatSessionList(count int, sessions []api.SessionInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Active Sessions (%d):\n\n", count)
	for _, s := range sessions {
		status := "waiting for phone"
		if s.Paired {
			status = "paired"
		}
		fmt.Fprintf(&sb, "- %s (%s, Created: %s)\n", s.Code, status, s.CreatedAt.Format("15:04:05"))
	}
	return sb.String()
}

func formatSessionInfo(info *api.SessionInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", info.Code)
	fmt.Fprintf(&sb, "Created: %s\n", info.CreatedAt.Format(time.RFC3339))
	if info.Paired {
		sb.WriteString("Status: paired\n")
		if info.JoinedAt != nil {
			fmt.Fprintf(&sb, "Joined: %s (%s after creation)\n",
				info.JoinedAt.Format(time.RFC3339), info.JoinedAt.Sub(info.CreatedAt).Round(time.Second))
		}
	} else {
		sb.WriteString("Status: waiting for phone\n")
		fmt.Fprintf(&sb, "Join URL: %s\n", info.JoinURL)
	}
	return sb.String()
}
