// Package bus implements the activity submission and dispatch pipeline.
//
// ARCHITECTURE:
//
// Submit validates an incoming activity, assigns identity and timestamp,
// persists it through the store collaborator, and enqueues it. Any
// number of producers may submit concurrently.
//
// DispatchNext is the single logical consumer: it pulls one activity off
// the FIFO queue, matches it against the rule set read from the store,
// runs the matched rules' effects in ascending priority order, feeds
// effect-produced activities back through Submit, and persists the
// result. Nothing here requires a second consumer, and at-most-once
// dispatch of a queued item is only guaranteed with one.
//
// FAILURE SEMANTICS:
//
// Admission errors are synchronous and caller-visible; nothing is
// persisted or queued on failure. Dispatch errors are data, not control
// flow: a failing effect becomes an Error entry on the activity's result
// trail and dispatch continues, while a failure outside the per-effect
// and per-resubmission guards degrades the whole activity to a tombstone.
// Once an activity has been dequeued, DispatchNext always returns either
// the finalized activity or its tombstone. A partially failed activity
// stays inspectable; it never vanishes.
//
// Effects are not transactional. Entries appended before a failure
// stand, even if the overall dispatch is later abandoned by the caller.
package bus
