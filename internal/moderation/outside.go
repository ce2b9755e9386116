package moderation

import (
	"context"
	"fmt"
	"log"

	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/protocol"
	"github.com/threadhelper/threadhelper/internal/settings"
	"github.com/threadhelper/threadhelper/internal/textmatch"
)

// removedPostComment is posted, stickied and locked on posts removed for
// linking a thread-only domain.
const removedPostComment = "Your post was removed because it contains a link from a domain that is restricted to an already existing thread.\n\nPlease post such links only in the designated thread."

// filterOutsideComment removes a comment outside any designated thread when
// its body links one of the thread-only domains.
func (e *Engine) filterOutsideComment(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Outcome, error) {
	domains := cfg.List(settings.DomainList)
	if !cfg.Bool(settings.RemoveOutside) || domains == "" {
		return OutcomeSkipped, nil
	}
	if !textmatch.ContainsDomain(domains, ev.Body) {
		return OutcomePassed, nil
	}

	if err := e.platform.Remove(ctx, ev.CommentID, false); err != nil {
		return OutcomePassed, fmt.Errorf("moderation: remove outside comment %s: %w", ev.CommentID, err)
	}
	metrics.RemovalsTotal.WithLabelValues("outside-comment").Inc()
	log.Printf("[moderation] removed outside comment %s by %s in %s", ev.CommentID, ev.UserID, ev.PostID)

	if cfg.Bool(settings.PMUser) {
		notice := OutsideNotice(ev.Subreddit, ev.CommentLink, ev.PostLink)
		e.notifier.Send(ctx, ev.UserID, ev.Username, ev.Subreddit, notice)
	}
	return OutcomeRemoved, nil
}

// HandlePostSubmit removes a new post outside any designated thread when its
// title, body or link contains one of the thread-only domains.
func (e *Engine) HandlePostSubmit(ctx context.Context, evt *protocol.PostSubmit, cfg settings.Values) (Outcome, error) {
	domains := cfg.List(settings.DomainList)
	if !cfg.Bool(settings.EnableApp) || !cfg.Bool(settings.RemovePosts) || domains == "" {
		return OutcomeSkipped, nil
	}
	post := evt.Post
	if Classify(post.FlairText(), post.Title, cfg).Applicable() {
		return OutcomeSkipped, nil
	}
	if !textmatch.ContainsDomain(domains, post.Title, post.Selftext, post.URL) {
		return OutcomePassed, nil
	}
	if evt.Author != nil && e.exemption.IsExempt(ctx, evt.Author.Name, evt.Subreddit.Name, cfg) {
		return OutcomeSkipped, nil
	}

	if cfg.Bool(settings.CommentOnPosts) {
		e.commentOnRemovedPost(ctx, post.ID)
	}
	if err := e.platform.Remove(ctx, post.ID, cfg.Bool(settings.RemovePostsAsSpam)); err != nil {
		return OutcomePassed, fmt.Errorf("moderation: remove post %s: %w", post.ID, err)
	}
	metrics.RemovalsTotal.WithLabelValues("outside-post").Inc()
	log.Printf("[moderation] removed post %s in r/%s: thread-only domain", post.ID, evt.Subreddit.Name)
	return OutcomeRemoved, nil
}

// commentOnRemovedPost leaves a stickied, locked explanation on the post.
// Failures are logged; the removal goes ahead regardless.
func (e *Engine) commentOnRemovedPost(ctx context.Context, postID string) {
	c, err := e.platform.SubmitComment(ctx, postID, removedPostComment)
	if err != nil {
		log.Printf("[moderation] comment on removed post %s: %v", postID, err)
		return
	}
	if err := e.platform.Distinguish(ctx, c.ID, true); err != nil {
		log.Printf("[moderation] distinguish notice %s: %v", c.ID, err)
	}
	if err := e.platform.Lock(ctx, c.ID); err != nil {
		log.Printf("[moderation] lock notice %s: %v", c.ID, err)
		return
	}
	metrics.LocksTotal.WithLabelValues("notice").Inc()
}
