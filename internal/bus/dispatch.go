package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftline/activitybus/internal/activity"
	"github.com/driftline/activitybus/internal/registry"
	"github.com/driftline/activitybus/internal/store"
)

// Error entry tags recorded in the "errorType" field. One consistent
// taxonomy: a stable machine tag plus a free-text "content" message,
// never a language-level type name.
const (
	errEffectExecution = "EffectExecution"
	errEffectNotFound  = "EffectNotFound"
	errResubmission    = "Resubmission"
	errDispatch        = "Dispatch"
)

// DispatchNext processes the next queued activity.
//
// When the queue is empty: non-blocking calls return (nil, nil)
// immediately; blocking calls suspend until an activity arrives, the
// context is cancelled, or the bus is closed with nothing left to drain.
//
// Once an activity has been dequeued this never returns an error: the
// result is either the finalized activity or its tombstone. The only
// error paths are pre-dequeue (context cancellation while blocked).
func (b *Bus) DispatchNext(ctx context.Context, block bool) (activity.Activity, error) {
	act, ok := b.queue.TryDequeue()
	for !ok {
		if !block {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.queue.Wait():
			act, ok = b.queue.TryDequeue()
			if !ok && b.queue.Closed() {
				return nil, nil
			}
		}
	}

	return b.process(ctx, act), nil
}

// process runs the dispatch pipeline on a dequeued activity. Never
// fails: unrecovered errors degrade the activity to a tombstone.
func (b *Bus) process(ctx context.Context, queued activity.Activity) activity.Activity {
	trace := traceToken()
	log := slog.With("trace", trace, "activity_id", queued.ID())
	log.Debug("dispatching", "type", queued.Type())

	// Resolve partial references; everything from here on operates on an
	// independent copy.
	act, err := b.store.Dereference(ctx, queued)
	if err != nil {
		return b.degrade(ctx, log, queued.Copy(),
			fmt.Sprintf("dereference failed: %v", err))
	}
	act.EnsureResult()

	matched, err := b.matchedRules(ctx, log, act)
	if err != nil {
		return b.degrade(ctx, log, act, fmt.Sprintf("rule query failed: %v", err))
	}

	for _, rule := range matched {
		b.runRule(ctx, log, rule, act)
	}

	b.resubmit(ctx, log, act)

	if err := b.store.Store(ctx, act, store.CollectionActivities); err != nil {
		return b.degrade(ctx, log, act, fmt.Sprintf("persist failed: %v", err))
	}

	log.Debug("dispatched",
		"matched_rules", len(matched),
		"result_entries", len(act.Result()),
	)

	return act
}

// matchedRules queries the active rule set and returns the rules whose
// pattern the activity satisfies, ascending by priority. Ties preserve
// store order (stable sort). A rule whose record is malformed or whose
// match evaluation errors is skipped, not fatal.
//
// The collection itself scopes the rule set: no type filter, so rules
// carrying a custom type tag still fire.
func (b *Bus) matchedRules(ctx context.Context, log *slog.Logger, act activity.Activity) ([]activity.Rule, error) {
	records, err := b.store.Query(ctx, nil, store.CollectionRules)
	if err != nil {
		return nil, err
	}

	var matched []activity.Rule
	for _, rec := range records {
		rule, err := activity.RuleFromMap(rec)
		if err != nil {
			log.Warn("skipping malformed rule record", "error", err)
			continue
		}

		ok, err := b.store.Match(ctx, act, rule.Match, true)
		if err != nil {
			log.Warn("skipping rule: match evaluation failed",
				"rule_id", rule.ID,
				"error", err,
			)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}

	activity.SortRulesByPriority(matched)
	return matched, nil
}

// runRule executes a rule's effects in list order. A single effect's
// failure is recorded on the result trail and execution continues; it
// never aborts the rule or the activity.
func (b *Bus) runRule(ctx context.Context, log *slog.Logger, rule activity.Rule, act activity.Activity) {
	log.Debug("rule matched", "rule_id", rule.ID, "priority", rule.Priority)

	for _, effectID := range rule.Effect {
		eff, ok := b.registry.Get(effectID)
		if !ok {
			log.Warn("effect not found", "rule_id", rule.ID, "effect_id", effectID)
			act.AppendResult(errorEntry(
				fmt.Sprintf("Effect not found: %s", effectID),
				act.ID(), errEffectNotFound, effectID))
			continue
		}

		entries, err := invokeEffect(ctx, eff, act)
		if err != nil {
			log.Warn("effect failed",
				"rule_id", rule.ID,
				"effect_id", effectID,
				"error", err,
			)
			act.AppendResult(errorEntry(
				fmt.Sprintf("effect %s failed: %v", effectID, err),
				act.ID(), errEffectExecution, effectID))
			continue
		}

		act.AppendResult(entries...)
	}
}

// invokeEffect calls a handler with panic recovery. A panicking effect
// is a failed effect, not a crashed dispatcher.
func invokeEffect(ctx context.Context, eff registry.Effect, act activity.Activity) (entries []activity.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return eff.Handler(ctx, act)
}

// resubmit scans the result trail for entries that are new activities
// (a type but no id), fills in context and actor from the parent, and
// submits each. A failed resubmission is recorded and is non-fatal to
// the parent.
func (b *Bus) resubmit(ctx context.Context, log *slog.Logger, act activity.Activity) {
	for _, entry := range act.NewActivityEntries() {
		if _, ok := entry[activity.FieldContext]; !ok {
			entry[activity.FieldContext] = act.ID()
		}
		if _, ok := entry[activity.FieldActor]; !ok {
			if actor, ok := act[activity.FieldActor]; ok {
				entry[activity.FieldActor] = actor
			}
		}

		child, err := b.Submit(ctx, activity.Activity(entry))
		if err != nil {
			log.Warn("resubmission failed", "error", err)
			act.AppendResult(errorEntry(
				fmt.Sprintf("resubmission failed: %v", err),
				act.ID(), errResubmission, ""))
			continue
		}
		log.Debug("spawned activity", "child_id", child.ID(), "child_type", child.Type())
	}
}

// degrade converts a failed activity into its tombstone. Appends an
// Error entry describing the failure unless the trail already carries
// one for this activity, then persists and returns the tombstone. Never
// fails: if the store's conversion or persistence errors, the failure is
// logged and a locally built tombstone is returned so the caller still
// gets a terminal record.
func (b *Bus) degrade(ctx context.Context, log *slog.Logger, act activity.Activity, reason string) activity.Activity {
	log.Error("dispatch degraded to tombstone", "reason", reason)

	if !act.HasErrorEntry(act.ID()) {
		act.AppendResult(errorEntry(reason, act.ID(), errDispatch, ""))
	}

	tomb, err := b.store.ConvertToTombstone(ctx, act)
	if err != nil {
		log.Error("tombstone conversion failed", "error", err)
		tomb = activity.Tombstone(act, b.now())
	}

	if err := b.store.Store(ctx, tomb, store.CollectionActivities); err != nil {
		log.Error("tombstone persist failed", "error", err)
	}

	return tomb
}

func errorEntry(content, contextID, errorType, effectID string) activity.Entry {
	e := activity.Entry{
		activity.FieldType:    activity.EntryError,
		"content":             content,
		activity.FieldContext: contextID,
		"errorType":           errorType,
	}
	if effectID != "" {
		e["effect"] = effectID
	}
	return e
}
