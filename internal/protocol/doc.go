// Package protocol owns the CAN application-layer contract.
//
// Ownership boundary:
// - frame value and wire primitives (frame)
// - value bindings and table finalization (binding)
// - identifier-indexed dispatch and transmit (dispatch)
// - master/client liveness handshake (handshake)
// - shared error taxonomy (this package)
//
// Wire contract:
// - standard 11-bit identifiers, data frames only
// - application frames carry 1..8 bytes, multi-byte values little-endian
// - handshake frames carry exactly one byte: 0xA5 request, 0x5A response
package protocol
