package moderation

import (
	"context"
	"log"

	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
)

// CommentEvent is what the comment rules see of one CommentCreate. Exempt
// and Scope are computed once before any rule runs.
type CommentEvent struct {
	Subreddit   string
	PostID      string
	PostLink    string
	CommentID   string
	CommentLink string
	Body        string
	UserID      string
	Username    string
	UserFlair   *platform.Flair
	Karma       *int64
	Scope       Scope
	Exempt      bool
}

// Rule is one step of the comment pipeline. check returns None to let the
// comment through to the next rule.
type Rule struct {
	name  string
	check func(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error)
}

// RunRules evaluates rules in order and returns the first reason produced.
// A rule that errors is logged and treated as passing.
func RunRules(ctx context.Context, rules []Rule, ev *CommentEvent, cfg settings.Values) Reason {
	for _, r := range rules {
		reason, err := r.check(ctx, ev, cfg)
		if err != nil {
			log.Printf("[moderation] rule %s on comment %s: %v", r.name, ev.CommentID, err)
			continue
		}
		if reason.Removed() {
			return reason
		}
	}
	return None
}

// commentRules is the fixed evaluation order for in-thread comments.
func (e *Engine) commentRules() []Rule {
	return []Rule{
		{name: "duplicate", check: e.checkDuplicate},
		{name: "reply", check: e.checkReply},
		{name: "user", check: e.checkUser},
		{name: "content", check: e.checkContent},
	}
}

func (e *Engine) checkDuplicate(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error) {
	if !cfg.Bool(settings.RemoveDuplicates) {
		return None, nil
	}
	over, err := e.duplicates.OnCreate(ctx, ev.PostID, ev.UserID, ev.Exempt)
	if err != nil || !over {
		return None, err
	}
	return Duplicate, nil
}

func (e *Engine) checkReply(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error) {
	if !cfg.Bool(settings.RemoveReplies) {
		return None, nil
	}
	remove, err := e.replies.EnforceTopLevelOnly(ctx, ev.CommentID, ev.Exempt)
	if err != nil || !remove {
		return None, err
	}
	return Reply, nil
}

func (e *Engine) checkUser(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error) {
	if ev.Exempt {
		return None, nil
	}
	return e.users.Evaluate(ctx, ev, cfg)
}

func (e *Engine) checkContent(_ context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error) {
	if ev.Exempt {
		return None, nil
	}
	return EvaluateContent(ev.CommentID, ev.Body, cfg), nil
}
