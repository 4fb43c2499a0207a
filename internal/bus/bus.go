package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/driftline/activitybus/internal/activity"
	"github.com/driftline/activitybus/internal/registry"
	"github.com/driftline/activitybus/internal/store"
)

// Bus accepts activities, queues them, and dispatches them against the
// rule set held by its store.
//
// Thread-safety model:
//   - Submit: safe from any goroutine
//   - DispatchNext: single logical consumer (see package doc)
//   - Registry mutation: startup / quiescent periods
type Bus struct {
	store     store.Store
	registry  *registry.Registry
	queue     *activityQueue
	namespace string
	tokens    TokenGenerator
	now       func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithTokenGenerator overrides the id token source. Tests use
// FixedTokens for deterministic synthesized ids.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(b *Bus) { b.tokens = g }
}

// WithClock overrides the timestamp source for published times.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a Bus over the given store and registry. The namespace
// scopes every activity id the bus accepts or synthesizes; an empty
// namespace makes all submissions fail with an ActivityID error.
func New(st store.Store, reg *registry.Registry, namespace string, opts ...Option) *Bus {
	b := &Bus{
		store:     st,
		registry:  reg,
		queue:     newActivityQueue(),
		namespace: strings.TrimSuffix(namespace, "/"),
		tokens:    AlphanumericGenerator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the bus's effect registry.
func (b *Bus) Registry() *registry.Registry {
	return b.registry
}

// Store returns the bus's store collaborator.
func (b *Bus) Store() store.Store {
	return b.store
}

// Namespace returns the configured id namespace.
func (b *Bus) Namespace() string {
	return b.namespace
}

// QueueLen returns the number of activities awaiting dispatch.
func (b *Bus) QueueLen() int {
	return b.queue.Len()
}

// Close shuts the work queue. Pending activities can still be drained
// with DispatchNext; further submissions fail.
func (b *Bus) Close() {
	b.queue.Close()
}

// Submit validates an activity, assigns identity and timestamp, persists
// it, and enqueues it for dispatch. The returned activity is an
// independent copy; the caller's record is never mutated.
//
// Fails with an InvalidActivity error when the activity is missing actor
// or type, and with an ActivityID error when an id cannot be synthesized
// or a supplied id is not scoped under the actor in the bus's namespace.
// On failure nothing is persisted and nothing is queued. The one caveat
// is a Close racing a concurrent Submit, which can leave the activity
// persisted but unqueued.
func (b *Bus) Submit(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	if act == nil {
		return nil, newInvalidActivity("activity must be a record")
	}
	if b.queue.Closed() {
		return nil, fmt.Errorf("submit: bus is closed")
	}

	act = act.Copy()

	if _, ok := act[activity.FieldActor]; !ok {
		return nil, newInvalidActivity("activity must contain an 'actor' field")
	}
	if _, ok := act[activity.FieldType]; !ok {
		return nil, newInvalidActivity("activity must contain a 'type' field")
	}

	actorID := act.ActorID()
	if actorID == "" {
		return nil, newInvalidActivity("actor must be an identifier string or an object with an 'id'")
	}
	// Normalize so composed and decomposed spellings of the same actor
	// name scope to the same prefix.
	actorID = norm.NFC.String(actorID)

	if err := b.ensureID(act, actorID); err != nil {
		return nil, err
	}

	if _, ok := act[activity.FieldPublished]; !ok {
		act[activity.FieldPublished] = b.now().UTC().Format(time.RFC3339)
	}
	act.EnsureResult()

	if err := b.store.Store(ctx, act, store.CollectionActivities); err != nil {
		return nil, fmt.Errorf("submit: persist activity %s: %w", act.ID(), err)
	}

	if !b.queue.Enqueue(act) {
		return nil, fmt.Errorf("submit: bus is closed")
	}

	slog.Debug("activity submitted",
		"activity_id", act.ID(),
		"type", act.Type(),
		"actor", actorID,
	)

	return act, nil
}

// ensureID synthesizes an id when absent and enforces actor scoping
// either way: the final id must be prefixed by {namespace}/users/{actorID}/.
func (b *Bus) ensureID(act activity.Activity, actorID string) error {
	if b.namespace == "" {
		return newActivityIDError("no namespace configured", act.ID())
	}

	scope := fmt.Sprintf("%s/users/%s/", b.namespace, actorID)

	id := act.ID()
	if id == "" {
		if _, present := act[activity.FieldID]; present {
			return newActivityIDError("id must be a string", "")
		}
		act[activity.FieldID] = scope + "outbox/" + b.tokens.Generate()
		return nil
	}

	if !strings.HasPrefix(id, scope) {
		return newActivityIDError(
			fmt.Sprintf("id not properly scoped under actor %s (want prefix %s)", actorID, scope), id)
	}
	return nil
}
