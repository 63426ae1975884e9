// Package wire owns the binary formats spoken to the push gateway.
//
// Ownership boundary:
// - command-0 notification frames (gateway, outbound)
// - fixed 38-byte feedback records (feedback service, inbound)
// - device token parsing
//
// The package does no I/O and keeps no state.
package wire
