package moderation

import (
	"github.com/threadhelper/threadhelper/internal/settings"
	"github.com/threadhelper/threadhelper/internal/textmatch"
)

const (
	flairScopeSentence = " Currently, this limit or requirement applies across all posts with this post's flair."
	titleScopeSentence = " Currently, this limit or requirement applies across all posts with a similar post title."
)

// Scope records why a post falls under thread rules. At most one field is
// true: the title is only consulted when the flair does not match.
type Scope struct {
	ByFlair bool
	ByTitle bool
}

// Applicable reports whether the post is a designated thread.
func (s Scope) Applicable() bool {
	return s.ByFlair || s.ByTitle
}

// Sentence returns the clause appended to removal notices.
func (s Scope) Sentence() string {
	switch {
	case s.ByFlair:
		return flairScopeSentence
	case s.ByTitle:
		return titleScopeSentence
	}
	return ""
}

// Classify decides whether a post with the given flair text and title is a
// designated thread. Flair must equal a flair-list entry exactly; the title
// must contain a title-list keyword. Both comparisons are case-sensitive.
func Classify(flairText, title string, cfg settings.Values) Scope {
	if textmatch.HasExact(flairText, cfg.List(settings.FlairList)) {
		return Scope{ByFlair: true}
	}
	if textmatch.ContainsAny(title, cfg.List(settings.TitleList)) {
		return Scope{ByTitle: true}
	}
	return Scope{}
}
