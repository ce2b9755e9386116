// Package moderation is the rule-evaluation core of the thread helper. It
// decides whether a new comment or post is removed, locked or left alone,
// keeps the per-post duplicate counts current, and explains removals to
// their authors.
//
// Comment rules run in a fixed order and the first one that produces a
// reason wins. Exactly one removal and at most one notification follow.
package moderation

// Reason identifies the rule that removed a comment. None means the comment
// stays.
type Reason string

const (
	None          Reason = ""
	Duplicate     Reason = "duplicate"
	Reply         Reason = "reply"
	Karma         Reason = "karma"
	PostKarma     Reason = "post-karma"
	CommentKarma  Reason = "comment-karma"
	Age           Reason = "age"
	Flair         Reason = "flair"
	FlairSpecific Reason = "flair-specific"
	Image         Reason = "image"
	Header        Reason = "header"
	Length        Reason = "length"
	Domain        Reason = "domain"
	Regex         Reason = "regex"
)

// reasonText is the user-facing sentence for each reason. Codes without an
// entry are shown verbatim.
var reasonText = map[Reason]string{
	Duplicate:     "- Comments on this post are limited to one per user.",
	Reply:         "- Comment replies are disabled on this post.",
	Image:         "- Comments containing images or reaction gifs are not allowed on this post.",
	Karma:         "- You do not meet the minimum total karma requirement to comment on this post.",
	PostKarma:     "- You do not meet the minimum post karma requirement to comment on this post.",
	CommentKarma:  "- You do not meet the minimum comment karma requirement to comment on this post.",
	Age:           "- You do not meet the minimum account age requirement to comment on this post.",
	Flair:         "- You must have user flair to comment on this post.",
	FlairSpecific: "- You do not have the required user flair to comment on this post.",
	Domain:        "- Your comment does not contain any of the required link domains.",
	Regex:         "- Your comment does not match the required format.",
}

// Text returns the sentence shown to the user for r.
func (r Reason) Text() string {
	if t, ok := reasonText[r]; ok {
		return t
	}
	return string(r)
}

// Removed reports whether r is a removal.
func (r Reason) Removed() bool {
	return r != None
}
