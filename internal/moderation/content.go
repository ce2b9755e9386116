package moderation

import (
	"log"
	"regexp"
	"unicode/utf8"

	"github.com/threadhelper/threadhelper/internal/settings"
	"github.com/threadhelper/threadhelper/internal/textmatch"
)

// Compiled once at package init and shared by every evaluation.
var (
	// imagePattern matches inline image and reaction gif markdown such as
	// ![img](abc123) or ![gif](giphy|xyz).
	imagePattern = regexp.MustCompile(`!\[(img|gif)\]\(([-\w|]+)\)`)

	// headerPattern matches a line opening with one to six '#' characters.
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}(?:[^#]|$)`)
)

// EvaluateContent checks a comment body and returns the first failure:
// images, headers, length, required domains, required regex, then
// restricted regex. A regex that does not compile disables that rule for
// this comment.
func EvaluateContent(commentID, body string, cfg settings.Values) Reason {
	if cfg.Bool(settings.RemoveImages) && imagePattern.MatchString(body) {
		return Image
	}
	if cfg.Bool(settings.RemoveHeaders) && headerPattern.MatchString(body) {
		return Header
	}
	if n, ok := cfg.Number(settings.MaxLength); textmatch.ValidMaxLength(n, ok) && float64(utf8.RuneCountInString(body)) > n {
		return Length
	}
	if cfg.Bool(settings.RequireDomains) && cfg.Has(settings.DomainList) &&
		!textmatch.ContainsDomain(cfg.List(settings.DomainList), body) {
		return Domain
	}
	if pattern := cfg.String(settings.RequiredRegex); pattern != "" {
		matched, err := textmatch.MatchRegex(body, pattern)
		if err != nil {
			log.Printf("[moderation] required-regex on %s: %v", commentID, err)
		} else if !matched {
			return Regex
		}
	}
	if pattern := cfg.String(settings.RestrictedRegex); pattern != "" {
		matched, err := textmatch.MatchRegex(body, pattern)
		if err != nil {
			log.Printf("[moderation] restricted-regex on %s: %v", commentID, err)
		} else if matched {
			return Regex
		}
	}
	return None
}
