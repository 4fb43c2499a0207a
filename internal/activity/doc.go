// Package activity defines the records that flow through the bus:
// activities, the rules that match them, the result entries that
// accumulate on them, and the tombstones that replace them on failure.
//
// Activities are open maps rather than closed structs. Activity Streams
// payloads carry arbitrary application-defined fields (object, target,
// context, summary, nested objects), and the engine must round-trip them
// untouched. The accessors on Activity give typed views of the handful of
// fields the engine itself interprets.
package activity
