// Package gateway owns the connections to the push gateway and feedback
// service.
//
// Ownership boundary:
// - persistent gateway connection lifecycle (connect, queue, dispatch, loss)
// - one-shot feedback harvests
// - the Session composition root binding credentials and environment
//
// Every operation returns a Future that resolves exactly once. Connection
// errors surface only through the Future of the affected request.
package gateway
