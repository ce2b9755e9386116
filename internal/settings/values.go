// Package settings provides read access to the operator-supplied installation
// options of a subreddit. Options are stored as flat name/value strings; a
// missing or blank value always means "rule disabled" unless a documented
// default applies.
package settings

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Option names as configured by the operator.
const (
	EnableApp           = "enable-app"
	FlairList           = "flair-list"
	TitleList           = "title-list"
	DomainList          = "domain-list"
	RemovePosts         = "remove-posts"
	RemovePostsAsSpam   = "remove-posts-as-spam"
	CommentOnPosts      = "comment-on-posts"
	LockOnUnpin         = "lock-on-unpin"
	RemoveDuplicates    = "remove-duplicates"
	UpdateCommentDelete = "update-comment-delete"
	RemoveReplies       = "remove-replies"
	MinKarma            = "min-karma"
	MinPostKarma        = "min-post-karma"
	MinCommentKarma     = "min-comment-karma"
	MinAccountAgeDays   = "min-account-age-days"
	RequireUserFlair    = "require-user-flair"
	UserFlairCSSList    = "user-flair-css-list"
	RequireDomains      = "require-domains"
	RemoveOutside       = "remove-outside-comments"
	RemoveImages        = "remove-images"
	RemoveHeaders       = "remove-headers"
	MaxLength           = "max-length"
	RequiredRegex       = "required-regex"
	RestrictedRegex     = "restricted-regex"
	PMUser              = "pm-user"
	ModsExempt          = "mods-exempt"
)

// known lists every option name the service reads.
var known = map[string]bool{
	EnableApp: true, FlairList: true, TitleList: true, DomainList: true,
	RemovePosts: true, RemovePostsAsSpam: true, CommentOnPosts: true,
	LockOnUnpin: true, RemoveDuplicates: true, UpdateCommentDelete: true,
	RemoveReplies: true, MinKarma: true, MinPostKarma: true,
	MinCommentKarma: true, MinAccountAgeDays: true, RequireUserFlair: true,
	UserFlairCSSList: true, RequireDomains: true, RemoveOutside: true,
	RemoveImages: true, RemoveHeaders: true, MaxLength: true,
	RequiredRegex: true, RestrictedRegex: true, PMUser: true, ModsExempt: true,
}

// Known reports whether name is an option the service reads.
func Known(name string) bool {
	return known[name]
}

// boolDefaults lists the boolean options whose default is true.
var boolDefaults = map[string]bool{
	EnableApp:           true,
	UpdateCommentDelete: true,
	ModsExempt:          true,
}

// Values is an immutable snapshot of one installation's options. The zero
// value is valid and behaves as if nothing was configured.
type Values struct {
	raw map[string]string
}

// NewValues copies m into a new snapshot.
func NewValues(m map[string]string) Values {
	raw := make(map[string]string, len(m))
	for k, v := range m {
		raw[k] = v
	}
	return Values{raw: raw}
}

// String returns the trimmed value of name, or "" when absent.
func (v Values) String(name string) string {
	return strings.TrimSpace(v.raw[name])
}

// Has reports whether name has a non-blank value.
func (v Values) Has(name string) bool {
	return v.String(name) != ""
}

// Bool returns the boolean value of name. Absent, blank or unparseable values
// fall back to the option's default.
func (v Values) Bool(name string) bool {
	s := v.String(name)
	if s == "" {
		return boolDefaults[name]
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return boolDefaults[name]
	}
	return b
}

// Number returns the numeric value of name. ok is false when the option is
// absent, blank, unparseable or NaN.
func (v Values) Number(name string) (n float64, ok bool) {
	s := v.String(name)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// List returns the raw comma-separated list value of name, trimmed.
func (v Values) List(name string) string {
	return v.String(name)
}

// Names returns the names of every option present in v, sorted.
func (v Values) Names() []string {
	names := make([]string, 0, len(v.raw))
	for name := range v.raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of v with name set to value.
func (v Values) With(name, value string) Values {
	out := NewValues(v.raw)
	out.raw[name] = value
	return out
}
