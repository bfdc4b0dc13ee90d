// Package events defines the control loop events emitted on the event bus.
//
// Available event types:
//   - TickEvent: summary of one control tick
//   - DecisionEvent: allocation result for one consumer
//   - CommandEvent: outcome of commanding one consumer
//   - TelemetryEvent: an accepted telemetry update
package events
