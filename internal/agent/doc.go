// Package agent is the client half of the push subscription handshake.
//
// An Agent drives one device through
//
//	Unregistered -> Registering -> Subscribing -> Subscribed
//
// with a transient Resetting state used by the debug reset flow. Everything
// the browser provides (notification permission, background worker
// registration, the push manager) is reached through the Platform
// interface, so the same state machine runs against a real host bridge or
// an in-memory fake. New subscriptions are handed to a Forwarder, normally
// an HTTPForwarder posting to the server's /api/push route.
//
// Worker implements the background worker's side of the contract: it turns
// a push message into a visible notification.
package agent
