// Package websocket provides the WebSocket transport for tiltlink.
//
// The websocket package implements:
//   - Upgrading HTTP requests and minting a connection id per client
//   - A read pump that decodes client events and hands them to an EventHandler
//   - A write pump that batches queued events and keeps the connection alive
//   - Non-blocking delivery to a connection by id (relay.Deliverer)
//
// Message Protocol:
//
// Every frame carries one or more JSON envelopes separated by newlines:
//
//	{"event": "join-mobile", "data": "a1b2"}
//	{"event": "move-desktop", "data": {"x": 1, "y": 2}}
//
// Malformed frames are dropped without closing the connection.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, func(id string) websocket.EventHandler {
//			return pairingService.Connect(id)
//		})
//	})
//
// Connection Lifecycle:
//
// 1. Client connects and is registered under a fresh id
// 2. Client events are passed to its handler in order
// 3. Events for the client are queued by Deliver and written by the write pump
// 4. When the read side fails the handler's Disconnect runs, then the client is dropped
//
// A client whose send queue is full is dropped by Run; its connection is
// closed, which ends its session like any other disconnect.
package websocket
