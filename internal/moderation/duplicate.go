package moderation

import (
	"context"
	"fmt"

	"github.com/threadhelper/threadhelper/internal/counter"
)

// DuplicateCounter enforces one comment per user per thread.
//
// Every comment occupies a slot, including the ones removed as duplicates,
// so deleting and recommenting does not reset the limit unless deletes are
// reconciled through OnDelete.
type DuplicateCounter struct {
	store counter.Store
}

// NewDuplicateCounter creates a DuplicateCounter backed by store.
func NewDuplicateCounter(store counter.Store) *DuplicateCounter {
	return &DuplicateCounter{store: store}
}

// OnCreate counts a new comment by userID on postID and reports whether it
// exceeds the limit. The count is incremented first and atomically; a new
// count above one means the user already had a standing comment. Exempt users
// are counted but never reported.
func (d *DuplicateCounter) OnCreate(ctx context.Context, postID, userID string, exempt bool) (bool, error) {
	n, err := d.store.Increment(ctx, postID, userID)
	if err != nil {
		return false, fmt.Errorf("moderation: duplicate count: %w", err)
	}
	return n > 1 && !exempt, nil
}

// OnDelete gives back the slot of a deleted comment. Only deletions by the
// author count, and only when reconcile is enabled; a count of one removes
// the user's field and an absent count stays absent.
func (d *DuplicateCounter) OnDelete(ctx context.Context, postID, userID string, deletedByAuthor, reconcile bool) error {
	if !reconcile || !deletedByAuthor {
		return nil
	}
	if _, err := d.store.Release(ctx, postID, userID); err != nil {
		return fmt.Errorf("moderation: duplicate release: %w", err)
	}
	return nil
}
