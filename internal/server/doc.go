// Package server is the transport boundary: it upgrades HTTP connections to
// WebSockets, pumps frames in and out of each client, and delivers the
// routing core's events to the right connections.
package server
