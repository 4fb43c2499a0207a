package effects

import (
	"context"
	"fmt"

	"github.com/driftline/activitybus/internal/activity"
	"github.com/driftline/activitybus/internal/registry"
)

// BundleNotes installs handlers for working with Note objects: creation,
// update, deletion, and replies. Replies spawn a Notification activity
// for the author of the note replied to.
const BundleNotes = "standard/notes"

func init() {
	Register(BundleNotes, notesBundle)
}

func notesBundle(reg *registry.Registry) error {
	reg.Register(BundleNotes+".createNote", createNote)
	reg.Register(BundleNotes+".updateNote", updateNote)
	reg.Register(BundleNotes+".deleteNote", deleteNote)
	reg.Register(BundleNotes+".createReply", createReply)
	return nil
}

func noteObject(act activity.Activity) map[string]any {
	obj, _ := act["object"].(map[string]any)
	return obj
}

func createNote(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	note := noteObject(act)
	content, _ := note["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("note must have a content field")
	}

	return []activity.Entry{{
		"type":    activity.EntryLog,
		"content": fmt.Sprintf("Created note with content: %s", truncate(content, 50)),
	}}, nil
}

func updateNote(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	note := noteObject(act)
	id, _ := note["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("note being updated must have an id")
	}
	content, _ := note["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("updated note must have a content field")
	}

	return []activity.Entry{{
		"type":    activity.EntryLog,
		"content": fmt.Sprintf("Updated note %s with content: %s", id, truncate(content, 50)),
	}}, nil
}

func deleteNote(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	note := noteObject(act)
	id, _ := note["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("note being deleted must have an id")
	}

	return []activity.Entry{{
		"type":    activity.EntryLog,
		"content": fmt.Sprintf("Deleted note %s", id),
	}}, nil
}

// createReply handles a Note carrying inReplyTo: it logs the reply and
// spawns a Notification activity for the author of the original note.
// The Notification entry has no id, so dispatch resubmits it.
func createReply(ctx context.Context, act activity.Activity) ([]activity.Entry, error) {
	note := noteObject(act)

	var replyTo string
	switch v := note["inReplyTo"].(type) {
	case string:
		replyTo = v
	case map[string]any:
		replyTo, _ = v["id"].(string)
	}
	if replyTo == "" {
		return nil, fmt.Errorf("reply must have a valid inReplyTo field")
	}

	content, _ := note["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("reply note must have a content field")
	}

	return []activity.Entry{
		{
			"type":    activity.EntryLog,
			"content": fmt.Sprintf("Created reply to %s with content: %s", replyTo, truncate(content, 50)),
		},
		{
			"type":    "Notification",
			"summary": "New reply to your note",
			"object":  map[string]any{"id": act.ID()},
			"target":  replyTo,
		},
	}, nil
}

// truncate shortens s to at most n runes. Cutting on rune boundaries
// keeps multibyte content valid UTF-8.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
