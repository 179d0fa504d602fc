// Package mcp provides a Model Context Protocol server for inspecting a
// running tiltlink server.
//
// The mcp package implements:
//   - MCP server for AI agent and operator tooling
//   - Read-only tool definitions proxied to the REST API
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//   - list_sessions: List active sessions, optionally filtered by paired state
//   - get_session: Get one session by its game code
//   - server_health: Active sessions and connected clients
//   - join_url: The phone join link and QR code link for a waiting session
//
// Transport Modes:
//   - Stdio: `tiltlink mcp` talks to a server over its REST API
//   - HTTP: the serve command answers JSON-RPC posted to /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3000")
//	server.ServeStdio(client.GetMCPServer())
package mcp
