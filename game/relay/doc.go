// Package relay delivers events between the members of a session.
//
// A Broadcaster keeps one broadcast group per session code: the set of
// connection ids that should receive events for that session. Groups are
// changed only by the pairing layer when a connection starts hosting, joins,
// or disconnects, so membership always mirrors the session registry.
//
// Delivery is delegated to a Deliverer (the websocket hub in production).
// Broadcast never returns an event to the connection it came from when that
// connection is passed as the exclusion.
package relay
