// Package bus owns frame I/O adapters.
//
// An Adapter moves single frame.Frame values on and off a CAN bus. The protocol
// layer never retries: Send and Receive either complete or return an error for
// that one call. Reopen policy after a failed Receive lives in Backoff.
//
// Adapters:
// - Loopback: in-process virtual bus with any number of endpoints
// - SocketCAN: Linux raw CAN socket (vcan0, can0, ...)
package bus
