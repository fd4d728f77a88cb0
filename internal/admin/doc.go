// Package admin serves the node's HTTP surface: probes, Prometheus metrics,
// client liveness, the live frame tables, and read/write access to named
// variables.
package admin
