// Package session owns connection policy shared by the gateway and feedback
// clients.
//
// Ownership boundary:
// - environment selection and endpoint resolution
// - connect/handshake/write/request timeouts
// - retry/backoff/outbox primitives
package session
