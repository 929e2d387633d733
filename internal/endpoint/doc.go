// Package endpoint owns the bidirectional network actor built on the wire
// protocol.
//
// Ownership boundary:
// - listener/dial lifecycle (Idle -> Running -> Stopped)
// - per-connection reader/writer worker pairs
// - ingress/egress queues exposed to the application
package endpoint
