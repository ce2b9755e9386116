// Package platform describes the forum platform API the rules act through:
// reading posts, comments and users, and removing, locking or messaging. The
// host runtime owns the real API; this service reaches it through Client.
package platform

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested post, comment or user no
	// longer exists.
	ErrNotFound = errors.New("platform: not found")

	// ErrNotWhitelisted is returned by SendPrivateMessage when the recipient
	// has disabled messages or blocks the app account.
	ErrNotWhitelisted = errors.New("platform: NOT_WHITELISTED_BY_USER_MESSAGE")
)

// PostPrefix is the fullname prefix of posts ("t3_"). A comment whose parent
// carries this prefix is a top-level comment.
const PostPrefix = "t3_"

// Flair is a post or user flair.
type Flair struct {
	Text     string `json:"text"`
	CSSClass string `json:"css_class"`
}

// Post is a submission.
type Post struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
	Title     string `json:"title"`
	Selftext  string `json:"selftext"`
	URL       string `json:"url"`
	Flair     *Flair `json:"flair,omitempty"`
	Locked    bool   `json:"locked"`
}

// FlairText returns the post flair text or "" when the post has no flair.
func (p *Post) FlairText() string {
	if p == nil || p.Flair == nil {
		return ""
	}
	return p.Flair.Text
}

// Comment is a comment on a post.
type Comment struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	PostID    string `json:"post_id"`
	Permalink string `json:"permalink"`
	Body      string `json:"body"`
}

// IsTopLevel reports whether the comment replies directly to the post.
func (c *Comment) IsTopLevel() bool {
	return strings.HasPrefix(c.ParentID, PostPrefix)
}

// User is an account profile.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	LinkKarma    int64     `json:"link_karma"`
	CommentKarma int64     `json:"comment_karma"`
	CreatedAt    time.Time `json:"created_at"`
}

// PrivateMessage is a message sent to a user's inbox.
type PrivateMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Client is the subset of the platform API used by the moderation rules.
// Lookups return ErrNotFound for missing items.
type Client interface {
	Remove(ctx context.Context, id string, spam bool) error
	Lock(ctx context.Context, id string) error
	SubmitComment(ctx context.Context, parentID, text string) (*Comment, error)
	Distinguish(ctx context.Context, id string, sticky bool) error
	GetComment(ctx context.Context, id string) (*Comment, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetModPermissions(ctx context.Context, username, subreddit string) ([]string, error)
	SendPrivateMessage(ctx context.Context, msg PrivateMessage) error
}
