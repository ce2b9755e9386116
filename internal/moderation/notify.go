package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
)

const (
	duplicateDisclaimer = "\n\nTo reduce your comment count so it is once again under the limit, you can delete your comment(s)."
	inboxDisclaimerFmt  = "\n\n*This inbox is not monitored. If you have any questions, please message the moderators of r/%s.*"
)

// Notice is the private message explaining a removal.
type Notice struct {
	Subject string
	Text    string
}

// RemovalNotice composes the message for an in-thread removal.
func RemovalNotice(subreddit, commentLink, postLink string, reason Reason, scope Scope, cfg settings.Values) Notice {
	text := fmt.Sprintf("Hi, [your comment](%s) in [this post](%s) was removed due to the following reason:\n\n", commentLink, postLink)
	text += reason.Text() + scope.Sentence()
	if reason == Duplicate && cfg.Bool(settings.UpdateCommentDelete) {
		text += duplicateDisclaimer
	}
	text += fmt.Sprintf(inboxDisclaimerFmt, subreddit)
	return Notice{Subject: noticeSubject(subreddit), Text: text}
}

// OutsideNotice composes the message for a comment removed for linking a
// thread-only domain outside the thread.
func OutsideNotice(subreddit, commentLink, postLink string) Notice {
	text := fmt.Sprintf("Hi, [your comment](%s) in [this post](%s) was removed because it was identified as being outside of the designated thread.", commentLink, postLink)
	text += fmt.Sprintf(inboxDisclaimerFmt, subreddit)
	return Notice{Subject: noticeSubject(subreddit), Text: text}
}

func noticeSubject(subreddit string) string {
	return fmt.Sprintf("Your comment in r/%s was removed", subreddit)
}

// Notifier delivers notices. Delivery never fails the caller: errors are
// logged and counted.
type Notifier struct {
	platform  platform.Client
	exemption *Exemption
}

// NewNotifier creates a Notifier. exemption identifies the system accounts
// that are never messaged.
func NewNotifier(p platform.Client, exemption *Exemption) *Notifier {
	return &Notifier{platform: p, exemption: exemption}
}

// Send delivers n to the user. When username is empty it is looked up from
// userID.
func (n *Notifier) Send(ctx context.Context, userID, username, subreddit string, notice Notice) {
	if username == "" {
		user, err := n.platform.GetUserByID(ctx, userID)
		if err != nil {
			log.Printf("[moderation] cannot notify user %s: %v", userID, err)
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			return
		}
		username = user.Username
	}
	if username == "" || n.exemption.IsKnownAccount(username, subreddit) {
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	err := n.platform.SendPrivateMessage(ctx, platform.PrivateMessage{
		To:      username,
		Subject: notice.Subject,
		Text:    notice.Text,
	})
	switch {
	case errors.Is(err, platform.ErrNotWhitelisted):
		log.Printf("[moderation] u/%s might have messaging disabled or might be blocking the app account", username)
		metrics.NotificationsTotal.WithLabelValues("not_whitelisted").Inc()
	case err != nil:
		log.Printf("[moderation] error sending PM to u/%s: %v", username, err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	default:
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}
}
