package moderation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/threadhelper/threadhelper/internal/counter"
	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/protocol"
	"github.com/threadhelper/threadhelper/internal/settings"
)

// Outcome summarizes what a handler did with one trigger.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomePassed   Outcome = "passed"
	OutcomeRemoved  Outcome = "removed"
	OutcomeLocked   Outcome = "locked"
	OutcomeReleased Outcome = "released"
)

// EngineConfig holds the engine's process-level settings.
type EngineConfig struct {
	// AppAccount is the username the app acts as.
	AppAccount string
	// Now is the clock used for account age. Defaults to time.Now.
	Now func() time.Time
}

// Engine handles the four trigger types. It holds no per-event state; every
// handler receives the installation settings for the event's subreddit.
type Engine struct {
	platform   platform.Client
	exemption  *Exemption
	duplicates *DuplicateCounter
	replies    *ReplyEnforcer
	users      *UserEvaluator
	notifier   *Notifier
	rules      []Rule
}

// NewEngine wires an Engine to the platform and the counter store.
func NewEngine(p platform.Client, store counter.Store, cfg EngineConfig) *Engine {
	x := NewExemption(p, cfg.AppAccount)
	e := &Engine{
		platform:   p,
		exemption:  x,
		duplicates: NewDuplicateCounter(store),
		replies:    NewReplyEnforcer(p),
		users:      NewUserEvaluator(p, cfg.Now),
		notifier:   NewNotifier(p, x),
	}
	e.rules = e.commentRules()
	return e
}

// HandleCommentCreate runs the comment pipeline. Comments outside a
// designated thread only go through the outside-thread domain filter.
func (e *Engine) HandleCommentCreate(ctx context.Context, evt *protocol.CommentCreate, cfg settings.Values) (Outcome, error) {
	if !cfg.Bool(settings.EnableApp) {
		return OutcomeSkipped, nil
	}

	ev := &CommentEvent{
		Subreddit:   evt.Subreddit.Name,
		PostID:      evt.Post.ID,
		PostLink:    evt.Post.Permalink,
		CommentID:   evt.Comment.ID,
		CommentLink: evt.Comment.Permalink,
		Body:        evt.Comment.Body,
		UserID:      evt.Author.ID,
		Username:    evt.Author.Name,
		UserFlair:   evt.Author.Flair,
		Karma:       evt.Author.Karma,
		Scope:       Classify(evt.Post.FlairText(), evt.Post.Title, cfg),
	}
	if !ev.Scope.Applicable() {
		return e.filterOutsideComment(ctx, ev, cfg)
	}

	ev.Exempt = e.exemption.IsExempt(ctx, ev.Username, ev.Subreddit, cfg)

	reason := RunRules(ctx, e.rules, ev, cfg)
	if !reason.Removed() {
		return OutcomePassed, nil
	}

	if err := e.platform.Remove(ctx, ev.CommentID, false); err != nil {
		return OutcomePassed, fmt.Errorf("moderation: remove comment %s (%s): %w", ev.CommentID, reason, err)
	}
	metrics.RemovalsTotal.WithLabelValues(string(reason)).Inc()
	log.Printf("[moderation] removed comment %s by %s in %s: %s", ev.CommentID, ev.UserID, ev.PostID, reason)

	if cfg.Bool(settings.PMUser) {
		notice := RemovalNotice(ev.Subreddit, ev.CommentLink, ev.PostLink, reason, ev.Scope, cfg)
		e.notifier.Send(ctx, ev.UserID, ev.Username, ev.Subreddit, notice)
	}
	return OutcomeRemoved, nil
}

// HandleCommentDelete gives back the author's duplicate-count slot when the
// author deleted their own comment. enable-app does not gate it so counts
// stay accurate while the app is paused.
func (e *Engine) HandleCommentDelete(ctx context.Context, evt *protocol.CommentDelete, cfg settings.Values) (Outcome, error) {
	if !cfg.Bool(settings.RemoveDuplicates) || !cfg.Bool(settings.UpdateCommentDelete) {
		return OutcomeSkipped, nil
	}
	byAuthor := evt.Source == protocol.SourceUser
	if err := e.duplicates.OnDelete(ctx, evt.PostID, evt.Author.ID, byAuthor, true); err != nil {
		return OutcomeSkipped, err
	}
	if !byAuthor {
		return OutcomeSkipped, nil
	}
	return OutcomeReleased, nil
}
