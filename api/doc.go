// Package api provides the HTTP surface of tiltlink.
//
// The api package implements:
//   - The WebSocket endpoint that feeds connections into the pairing core
//   - Read-only session inspection endpoints
//   - QR codes that let a phone open the join link for a session
//   - Static file serving with an index.html fallback for the browser client
//
// Endpoints:
//
//   - GET /ws - WebSocket upgrade
//   - GET /api/health - Liveness, active sessions and connected clients
//   - GET /api/sessions - List active sessions (optional ?paired=true|false)
//   - GET /api/sessions/{code} - Get one session
//   - GET /api/sessions/{code}/qr - PNG QR code of the join link (?size=128..1024)
//   - GET /* - Static files, falling back to index.html
//
// Sessions cannot be created or deleted over HTTP; they only exist while a
// desktop client holds its WebSocket open.
package api
