// Package service runs one configured node on a bus.
//
// A receive goroutine feeds every inbound frame to the handle and reopens the
// adapter with backoff when it fails. A ticker goroutine drives SendAll and the
// handshake step once per cycle period. Both log through zerolog and publish
// Prometheus metrics labelled with the node id.
package service
