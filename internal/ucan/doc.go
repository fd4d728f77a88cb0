// Package ucan owns the protocol handle.
//
// A Handle aggregates one node registry, one transmit table and one receive
// table, and gates every operation on its lifecycle:
//
//	uninitialized -> Init -> ready -> Start -> started
//	any setup failure          -> faulted (terminal)
//
// Once started, the periodic loop calls SendAll and Handshake while the receive
// path calls Receive for every inbound frame. Both may run concurrently.
package ucan
