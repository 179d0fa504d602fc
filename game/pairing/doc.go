// Package pairing binds client connections to sessions.
//
// Every connection gets a Conn, a small state machine driven by the events
// its client sends:
//
//	Unbound --join-desktop--> Hosting
//	Unbound --join-mobile---> Joined
//	Hosting/Joined --move-mobile--> (relayed as move-desktop)
//	any --disconnect--> Closed
//
// Service coordinates the session registry and the relay broadcaster.
// Creating, joining and tearing down a session change both under one lock so
// that a client never sees game-start for a session that is already gone.
// Relaying motion events only reads broadcast groups and never takes that
// lock.
//
// Events a connection sends in a state that does not expect them are
// dropped. Lookup and capacity failures are reported to the sender as
// game-error; nothing in this package is fatal to the process.
package pairing
