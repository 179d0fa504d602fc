// Package session provides the session registry for tiltlink.
//
// The session package implements:
//   - Short session code generation
//   - Thread-safe session storage keyed by code
//   - Strict two-party capacity (one host, one peer)
//   - Session teardown on disconnect
//
// Core Types:
//
// Manager is the authoritative in-memory table of active sessions. Session is
// a snapshot of one pairing: the code, the host connection that created it
// and the peer connection that joined it, if any.
//
// Session Codes:
//
// Codes are 4 hex characters drawn from crypto/rand. They are meant to be
// typed on a phone, not to resist guessing. Codes can collide; Create
// silently replaces whatever was stored under the same code.
//
// Concurrency:
//
// Every Manager method runs under a single mutex, so the operations are
// linearizable. Two peers racing for the same session resolve to exactly one
// Joined and one AlreadyFull, and a join racing a teardown either sees the
// session or NotFound.
//
// Usage:
//
//	manager := session.NewManager()
//
//	code := session.GenerateCode()
//	manager.Create(code, hostConnID)
//
//	switch manager.Join(code, peerConnID) {
//	case session.Joined:
//		// paired
//	case session.NotFound, session.AlreadyFull:
//		// report to the peer
//	}
//
//	manager.Teardown(code)
package session
