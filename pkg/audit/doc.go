// Package audit records enforcement decisions and entitlement changes for
// compliance review.
//
// # Event Types
//
// Decisions: decision.granted, decision.denied, decision.bypass
// Entitlements: entitlement.changed
//
// # Delivery
//
// Recording is fire-and-forget from the core's perspective: a sink that
// fails logs locally and drops the event; it never blocks or fails the
// access decision it describes.
//
//	sink := audit.NewDBSink(db, logger)
//	sink.Record(ctx, audit.NewDecisionEvent(...))
//
// # Retention
//
// Decision events are purged after the configured retention window by a
// cron job (see Purger). Entitlement change events are append-only forever
// and exempt from retention.
//
// # Related Packages
//
//   - pkg/authz: produces decision events
//   - pkg/entitlement: produces change events
package audit
