// Package message tracks outbound chat messages that may have to be
// retracted later, such as confirmation prompts with stale buttons.
package message

import (
	"context"

	"go.uber.org/zap"
)

// Store persists the ordered set of outstanding message ids per user.
// Implementations must apply each call atomically.
type Store interface {
	AppendMessageIDs(ctx context.Context, userID int64, ids []int64) error
	TakeMessageIDs(ctx context.Context, userID int64) ([]int64, error)
	ClearMessageIDs(ctx context.Context, userID int64) error
}

// Deleter removes a message from a chat.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

type Tracker struct {
	store Store
	log   *zap.SugaredLogger
}

func NewTracker(store Store, log *zap.SugaredLogger) *Tracker {
	return &Tracker{store: store, log: log}
}

// Record adds messageID to the user's outstanding set. Recording an id that
// is already present is a no-op.
func (t *Tracker) Record(ctx context.Context, userID, messageID int64) error {
	return t.store.AppendMessageIDs(ctx, userID, []int64{messageID})
}

// DrainForDeletion returns the outstanding set and empties it.
func (t *Tracker) DrainForDeletion(ctx context.Context, userID int64) ([]int64, error) {
	return t.store.TakeMessageIDs(ctx, userID)
}

// Clear empties the outstanding set without returning it.
func (t *Tracker) Clear(ctx context.Context, userID int64) error {
	return t.store.ClearMessageIDs(ctx, userID)
}

// Retract drains the user's set and deletes every message from chatID.
// Deletion is best-effort: messages that are gone, too old or not deletable
// are skipped. It returns the number of messages actually deleted.
func (t *Tracker) Retract(ctx context.Context, d Deleter, userID, chatID int64) int {
	ids, err := t.DrainForDeletion(ctx, userID)
	if err != nil {
		t.log.Errorw("drain outstanding messages", "user_id", userID, "err", err)
		return 0
	}
	deleted := 0
	for _, id := range ids {
		if err := d.DeleteMessage(ctx, chatID, id); err != nil {
			t.log.Debugw("skip message retraction", "user_id", userID, "message_id", id, "err", err)
			continue
		}
		deleted++
	}
	return deleted
}

// MergeIDs appends the ids of add missing from existing, keeping first-seen
// order and dropping duplicates inside add.
func MergeIDs(existing, add []int64) []int64 {
	seen := make(map[int64]struct{}, len(existing)+len(add))
	out := make([]int64, 0, len(existing)+len(add))
	for _, src := range [][]int64{existing, add} {
		for _, id := range src {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
