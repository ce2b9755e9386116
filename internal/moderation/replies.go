package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/platform"
)

// ReplyEnforcer keeps threads to top-level comments only.
type ReplyEnforcer struct {
	platform platform.Client
}

// NewReplyEnforcer creates a ReplyEnforcer.
func NewReplyEnforcer(p platform.Client) *ReplyEnforcer {
	return &ReplyEnforcer{platform: p}
}

// EnforceTopLevelOnly looks up the comment and reports whether it must be
// removed. A top-level comment is locked so it cannot collect replies and is
// never removed. A reply is removed unless the author is exempt. A comment
// that no longer exists is left alone.
func (r *ReplyEnforcer) EnforceTopLevelOnly(ctx context.Context, commentID string, exempt bool) (bool, error) {
	c, err := r.platform.GetComment(ctx, commentID)
	if errors.Is(err, platform.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("moderation: get comment: %w", err)
	}

	if c.IsTopLevel() {
		if err := r.platform.Lock(ctx, c.ID); err != nil {
			log.Printf("[moderation] lock top-level comment %s: %v", c.ID, err)
			return false, nil
		}
		metrics.LocksTotal.WithLabelValues("comment").Inc()
		return false, nil
	}
	return !exempt, nil
}
