package moderation

import (
	"context"
	"errors"
	"log"

	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
)

// AutoModerator is the platform's automated moderation account.
const AutoModerator = "AutoModerator"

// Exemption decides whether an acting user is a moderator.
type Exemption struct {
	platform   platform.Client
	appAccount string
}

// NewExemption creates an Exemption. appAccount is the service account the
// app acts as; it is always treated as a moderator.
func NewExemption(p platform.Client, appAccount string) *Exemption {
	return &Exemption{platform: p, appAccount: appAccount}
}

// IsKnownAccount reports whether username is one of the system accounts
// that are moderators without a permission lookup and never receive
// messages.
func (x *Exemption) IsKnownAccount(username, subreddit string) bool {
	if username == "" {
		return false
	}
	return username == AutoModerator ||
		username == subreddit+"-ModTeam" ||
		(x.appAccount != "" && username == x.appAccount)
}

// IsModerator reports whether username moderates subreddit. An empty username
// is never a moderator. The account is looked up before its permissions; a
// missing account or a failed lookup counts as not a moderator.
func (x *Exemption) IsModerator(ctx context.Context, username, subreddit string) bool {
	if username == "" {
		return false
	}
	if x.IsKnownAccount(username, subreddit) {
		return true
	}
	user, err := x.platform.GetUserByUsername(ctx, username)
	if errors.Is(err, platform.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("[moderation] look up u/%s: %v", username, err)
		return false
	}
	perms, err := x.platform.GetModPermissions(ctx, user.Username, subreddit)
	if err != nil {
		log.Printf("[moderation] mod permissions for u/%s in r/%s: %v", username, subreddit, err)
		return false
	}
	return len(perms) > 0
}

// IsExempt reports whether username bypasses the thread rules: mods-exempt
// must be on and the user must be a moderator.
func (x *Exemption) IsExempt(ctx context.Context, username, subreddit string, cfg settings.Values) bool {
	if !cfg.Bool(settings.ModsExempt) {
		return false
	}
	return x.IsModerator(ctx, username, subreddit)
}
