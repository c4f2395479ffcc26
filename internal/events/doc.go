// Package events provides broker lifecycle events and an in-process emitter.
//
// The broker connection manager emits an event whenever the connection
// changes state (connected, lost, degraded, closed). Handlers registered on
// the emitter observe those transitions without the manager knowing who is
// listening. A LoggingHandler is provided to turn transitions into
// structured log records.
package events
