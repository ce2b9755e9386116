package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
	"github.com/threadhelper/threadhelper/internal/textmatch"
)

// UserEvaluator checks the commenter's karma, account age and flair.
type UserEvaluator struct {
	platform platform.Client
	now      func() time.Time
}

// NewUserEvaluator creates a UserEvaluator. now is the clock used for
// account age; nil means time.Now.
func NewUserEvaluator(p platform.Client, now func() time.Time) *UserEvaluator {
	if now == nil {
		now = time.Now
	}
	return &UserEvaluator{platform: p, now: now}
}

type threshold struct {
	value float64
	set   bool
}

// Evaluate runs the user checks in order and returns the first failure:
// total karma, post karma, comment karma, account age, then flair.
//
// Total karma uses the event's snapshot when present. The profile is fetched
// only when a configured check needs it; a profile that cannot be found ends
// the evaluation without a removal.
func (u *UserEvaluator) Evaluate(ctx context.Context, ev *CommentEvent, cfg settings.Values) (Reason, error) {
	total := karmaThreshold(cfg, settings.MinKarma)
	post := karmaThreshold(cfg, settings.MinPostKarma)
	comment := karmaThreshold(cfg, settings.MinCommentKarma)
	age := threshold{}
	if n, ok := cfg.Number(settings.MinAccountAgeDays); textmatch.ValidAccountAge(n, ok) {
		age = threshold{value: n, set: true}
	}

	if total.set && ev.Karma != nil && float64(*ev.Karma) < total.value {
		return Karma, nil
	}

	if (total.set && ev.Karma == nil) || post.set || comment.set || age.set {
		user, err := u.platform.GetUserByID(ctx, ev.UserID)
		if errors.Is(err, platform.ErrNotFound) {
			log.Printf("[moderation] user %s not found, skipping user checks on %s", ev.UserID, ev.CommentID)
			return None, nil
		}
		if err != nil {
			return None, fmt.Errorf("moderation: get user: %w", err)
		}

		switch {
		case total.set && ev.Karma == nil && float64(user.LinkKarma+user.CommentKarma) < total.value:
			return Karma, nil
		case post.set && float64(user.LinkKarma) < post.value:
			return PostKarma, nil
		case comment.set && float64(user.CommentKarma) < comment.value:
			return CommentKarma, nil
		case age.set && u.now().Sub(user.CreatedAt).Hours()/24 < age.value:
			return Age, nil
		}
	}

	return flairReason(ev.UserFlair, cfg), nil
}

func karmaThreshold(cfg settings.Values, name string) threshold {
	n, ok := cfg.Number(name)
	if !textmatch.ValidKarma(n, ok) {
		return threshold{}
	}
	return threshold{value: n, set: true}
}

// flairReason applies require-user-flair. With a blank CSS allow-list any
// flair passes.
func flairReason(flair *platform.Flair, cfg settings.Values) Reason {
	if !cfg.Bool(settings.RequireUserFlair) {
		return None
	}
	if flair == nil {
		return Flair
	}
	allowed := textmatch.Split(cfg.List(settings.UserFlairCSSList))
	if len(allowed) == 0 {
		return None
	}
	for _, css := range allowed {
		if flair.CSSClass == css {
			return None
		}
	}
	return FlairSpecific
}
