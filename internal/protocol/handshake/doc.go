// Package handshake owns the master/client liveness protocol.
//
// A master pings under its own id at most once per PingInterval. Clients answer a
// ping from their registered master with a one-byte response under their own id.
// The master records the tick of each response and, on every evaluation, classifies
// each client from the ticks elapsed since its last response:
//
//	never responded        WAITING
//	elapsed <= Timeout     ACTIVE
//	elapsed <= Lost        TIMEOUT
//	otherwise              LOST
//
// Ticks are a wrapping 32-bit counter. All state read by one goroutine and written
// by another is a single atomic word.
package handshake
