package effects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftline/activitybus/internal/activity"
	"github.com/driftline/activitybus/internal/registry"
)

// BundleAudit installs cross-cutting handlers: activity logging, hashtag
// extraction, and follow bookkeeping.
const BundleAudit = "standard/audit"

func init() {
	Register(BundleAudit, auditBundle)
}

func auditBundle(reg *registry.Registry) error {
	reg.Register(BundleAudit+".logActivity", logActivity, registry.WithPriority(10))
	reg.Register(BundleAudit+".hashtags", hashtags, registry.WithPriority(50))
	reg.Register(BundleAudit+".follow", follow, registry.WithPriority(50),
		registry.WithMetadata(map[string]any{"spawns": "Notification"}))
	return nil
}

// logActivity records any activity on its own result trail and in the
// process log.
func logActivity(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	slog.Info("processing activity", "activity_id", act.ID(), "type", act.Type())

	return []activity.Entry{{
		"type":    activity.EntryLog,
		"content": fmt.Sprintf("Activity logged: %s", act.Type()),
		"context": act.ID(),
	}}, nil
}

// hashtags extracts #tags from the activity's textual content (its own
// content field, or its object's). No content yields a Warning entry
// rather than an error; a contentless note is odd, not broken.
func hashtags(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	content, _ := act["content"].(string)
	if content == "" {
		if obj, ok := act["object"].(map[string]any); ok {
			content, _ = obj["content"].(string)
		}
	}
	if content == "" {
		return []activity.Entry{{
			"type":    activity.EntryWarning,
			"content": "no content to scan for hashtags",
			"context": act.ID(),
		}}, nil
	}

	var tags []any
	for _, word := range strings.Fields(content) {
		if len(word) > 1 && strings.HasPrefix(word, "#") {
			tags = append(tags, strings.TrimPrefix(word, "#"))
		}
	}
	if len(tags) == 0 {
		return nil, nil
	}

	return []activity.Entry{{
		"type":    "HashtagResult",
		"tags":    tags,
		"context": act.ID(),
	}}, nil
}

// follow records a follower relationship and spawns a Notification for
// the followed user.
func follow(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	var target string
	switch obj := act["object"].(type) {
	case string:
		target = obj
	case map[string]any:
		target, _ = obj["id"].(string)
	}
	if target == "" {
		return nil, fmt.Errorf("follow activity missing 'object' field")
	}

	follower := act.ActorID()

	return []activity.Entry{
		{
			"type":      "FollowResult",
			"follower":  follower,
			"following": target,
			"context":   act.ID(),
		},
		{
			"type":    "Notification",
			"to":      []any{target},
			"summary": fmt.Sprintf("New follower: %s", follower),
			"object":  map[string]any{"type": "Follow", "actor": follower, "object": target},
		},
	}, nil
}
