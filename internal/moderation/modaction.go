package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/protocol"
	"github.com/threadhelper/threadhelper/internal/settings"
)

// ActionUnsticky is the mod action emitted when a post is unpinned.
const ActionUnsticky = "unsticky"

// HandleModAction locks a designated thread when a moderator unpins it.
// Flair is checked before title; comment unstickies are ignored.
func (e *Engine) HandleModAction(ctx context.Context, evt *protocol.ModAction, cfg settings.Values) (Outcome, error) {
	if evt.Action != ActionUnsticky {
		return OutcomeSkipped, nil
	}
	if !cfg.Bool(settings.EnableApp) || !cfg.Bool(settings.LockOnUnpin) {
		return OutcomeSkipped, nil
	}
	if evt.TargetComment != nil && evt.TargetComment.ID != "" {
		return OutcomeSkipped, nil
	}
	if evt.TargetPost == nil || evt.TargetPost.ID == "" {
		return OutcomeSkipped, nil
	}

	post, err := e.platform.GetPost(ctx, evt.TargetPost.ID)
	if errors.Is(err, platform.ErrNotFound) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("moderation: get post %s: %w", evt.TargetPost.ID, err)
	}
	if post.Locked {
		return OutcomeSkipped, nil
	}
	if !Classify(post.FlairText(), post.Title, cfg).Applicable() {
		return OutcomePassed, nil
	}

	if err := e.platform.Lock(ctx, post.ID); err != nil {
		return OutcomePassed, fmt.Errorf("moderation: lock post %s: %w", post.ID, err)
	}
	metrics.LocksTotal.WithLabelValues("post").Inc()
	log.Printf("[moderation] locked unpinned thread %s in r/%s", post.ID, evt.Subreddit.Name)
	return OutcomeLocked, nil
}
