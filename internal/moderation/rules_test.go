package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/threadhelper/threadhelper/internal/counter"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
)

func TestClassify(t *testing.T) {
	cfg := cfgOf(settings.FlairList, " Megathread , Referrals ", settings.TitleList, "Referral Thread,Weekly")

	tests := []struct {
		name  string
		flair string
		title string
		want  Scope
	}{
		{"flair exact", "Megathread", "anything", Scope{ByFlair: true}},
		{"flair trimmed", "  Referrals ", "", Scope{ByFlair: true}},
		{"flair wins over title", "Megathread", "Weekly Referral Thread", Scope{ByFlair: true}},
		{"flair case-sensitive", "megathread", "nothing here", Scope{}},
		{"flair substring not enough", "Mega", "", Scope{}},
		{"title substring", "", "The Weekly thread", Scope{ByTitle: true}},
		{"title case-sensitive", "", "weekly", Scope{}},
		{"title used when flair misses", "Other", "Referral Thread #4", Scope{ByTitle: true}},
		{"nothing", "", "", Scope{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.flair, tt.title, cfg); got != tt.want {
				t.Errorf("Classify(%q, %q) = %+v, want %+v", tt.flair, tt.title, got, tt.want)
			}
		})
	}

	if Classify("Megathread", "Weekly", settings.Values{}).Applicable() {
		t.Error("empty lists must never match")
	}
}

func TestReasonText(t *testing.T) {
	if got := Duplicate.Text(); got != "- Comments on this post are limited to one per user." {
		t.Errorf("Duplicate.Text() = %q", got)
	}
	// header and length have no sentence and pass through verbatim.
	if got := Header.Text(); got != "header" {
		t.Errorf("Header.Text() = %q, want %q", got, "header")
	}
	if got := Length.Text(); got != "length" {
		t.Errorf("Length.Text() = %q, want %q", got, "length")
	}
	if None.Removed() || !Regex.Removed() {
		t.Error("Removed() mismatch")
	}
}

func TestScopeSentence(t *testing.T) {
	if s := (Scope{ByFlair: true, ByTitle: true}).Sentence(); !strings.Contains(s, "flair") {
		t.Errorf("flair must take precedence, got %q", s)
	}
	if s := (Scope{ByTitle: true}).Sentence(); !strings.Contains(s, "similar post title") {
		t.Errorf("title sentence = %q", s)
	}
	if s := (Scope{}).Sentence(); s != "" {
		t.Errorf("empty scope sentence = %q", s)
	}
}

func TestEvaluateContent(t *testing.T) {
	tests := []struct {
		name string
		cfg  settings.Values
		body string
		want Reason
	}{
		{"image", cfgOf(settings.RemoveImages, "true"), "![img](abc123)", Image},
		{"gif with pipe id", cfgOf(settings.RemoveImages, "true"), "lol ![gif](giphy|xyz-1)", Image},
		{"image rule off", cfgOf(), "![img](abc123)", None},
		{"plain link is not image", cfgOf(settings.RemoveImages, "true"), "[img](abc123)", None},
		{"header", cfgOf(settings.RemoveHeaders, "true"), "hello\n## Big", Header},
		{"header first line", cfgOf(settings.RemoveHeaders, "true"), "#Title", Header},
		{"seven hashes", cfgOf(settings.RemoveHeaders, "true"), "####### not a header", None},
		{"hash mid line", cfgOf(settings.RemoveHeaders, "true"), "code #1234", None},
		{"length at max", cfgOf(settings.MaxLength, "10"), "0123456789", None},
		{"length over max", cfgOf(settings.MaxLength, "10"), "0123456789a", Length},
		{"length counts runes", cfgOf(settings.MaxLength, "3"), "äöü", None},
		{"length zero disabled", cfgOf(settings.MaxLength, "0"), "long body", None},
		{"length NaN disabled", cfgOf(settings.MaxLength, "NaN"), "long body", None},
		{"domain missing", cfgOf(settings.RequireDomains, "true", settings.DomainList, "example.com"), "no link", Domain},
		{"domain case-insensitive", cfgOf(settings.RequireDomains, "true", settings.DomainList, "example.com"), "EXAMPLE.COM/foo", None},
		{"domain list blank", cfgOf(settings.RequireDomains, "true"), "no link", None},
		{"required regex miss", cfgOf(settings.RequiredRegex, `^CODE-\d+$`), "hello", Regex},
		{"required regex hit", cfgOf(settings.RequiredRegex, `^CODE-\d+$`), "CODE-42", None},
		{"restricted regex hit", cfgOf(settings.RestrictedRegex, `(?i)dm me`), "DM me for code", Regex},
		{"invalid required regex fails open", cfgOf(settings.RequiredRegex, `([`), "anything", None},
		{"invalid restricted regex fails open", cfgOf(settings.RestrictedRegex, `([`), "anything", None},
		{"image before length", cfgOf(settings.RemoveImages, "true", settings.MaxLength, "3"), "![img](abc123)", Image},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateContent("t1_c", tt.body, tt.cfg); got != tt.want {
				t.Errorf("EvaluateContent(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestUserEvaluator(t *testing.T) {
	karma := func(n int64) *int64 { return &n }
	p := newFakePlatform()
	p.users["t2_new"] = &platform.User{
		ID: "t2_new", Username: "newbie", LinkKarma: 3, CommentKarma: 4,
		CreatedAt: fixedNow.Add(-36 * time.Hour),
	}
	p.users["t2_old"] = &platform.User{
		ID: "t2_old", Username: "veteran", LinkKarma: 500, CommentKarma: 900,
		CreatedAt: fixedNow.AddDate(-3, 0, 0),
	}
	u := NewUserEvaluator(p, func() time.Time { return fixedNow })

	tests := []struct {
		name  string
		cfg   settings.Values
		user  string
		karma *int64
		flair *platform.Flair
		want  Reason
	}{
		{"snapshot karma low", cfgOf(settings.MinKarma, "10"), "t2_old", karma(5), nil, Karma},
		{"snapshot karma ok", cfgOf(settings.MinKarma, "10"), "t2_new", karma(50), nil, None},
		{"profile karma low", cfgOf(settings.MinKarma, "10"), "t2_new", nil, nil, Karma},
		{"zero threshold disabled", cfgOf(settings.MinKarma, "0"), "t2_new", karma(-100), nil, None},
		{"negative threshold allowed", cfgOf(settings.MinKarma, "-5"), "t2_new", karma(-10), nil, Karma},
		{"post karma", cfgOf(settings.MinPostKarma, "5"), "t2_new", nil, nil, PostKarma},
		{"comment karma", cfgOf(settings.MinCommentKarma, "5"), "t2_new", nil, nil, CommentKarma},
		{"account age", cfgOf(settings.MinAccountAgeDays, "2"), "t2_new", nil, nil, Age},
		{"account age ok", cfgOf(settings.MinAccountAgeDays, "1.5"), "t2_new", nil, nil, None},
		{"flair missing", cfgOf(settings.RequireUserFlair, "true"), "t2_old", nil, nil, Flair},
		{"any flair passes", cfgOf(settings.RequireUserFlair, "true"), "t2_old", nil, &platform.Flair{Text: "x"}, None},
		{"flair css not allowed", cfgOf(settings.RequireUserFlair, "true", settings.UserFlairCSSList, "verified, trusted"), "t2_old", nil, &platform.Flair{CSSClass: "newbie"}, FlairSpecific},
		{"flair css allowed", cfgOf(settings.RequireUserFlair, "true", settings.UserFlairCSSList, "verified, trusted"), "t2_old", nil, &platform.Flair{CSSClass: "trusted"}, None},
		{"karma before flair", cfgOf(settings.MinKarma, "10", settings.RequireUserFlair, "true"), "t2_new", karma(1), nil, Karma},
		{"missing profile aborts", cfgOf(settings.MinPostKarma, "5", settings.RequireUserFlair, "true"), "t2_gone", nil, nil, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &CommentEvent{CommentID: "t1_c", UserID: tt.user, Karma: tt.karma, UserFlair: tt.flair}
			got, err := u.Evaluate(context.Background(), ev, tt.cfg)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserEvaluator_SkipsProfileWhenSnapshotSuffices(t *testing.T) {
	p := newFakePlatform()
	u := NewUserEvaluator(p, nil)
	k := int64(100)

	ev := &CommentEvent{UserID: "t2_x", Karma: &k}
	if _, err := u.Evaluate(context.Background(), ev, cfgOf(settings.MinKarma, "10")); err != nil {
		t.Fatal(err)
	}
	if p.userLookups != 0 {
		t.Errorf("profile lookups = %d, want 0", p.userLookups)
	}
}

func TestDuplicateCounter(t *testing.T) {
	ctx := context.Background()
	d := NewDuplicateCounter(counter.NewMemStore())

	// N creates with no deletes: only the first survives.
	const n = 4
	for i := 1; i <= n; i++ {
		over, err := d.OnCreate(ctx, "p", "u", false)
		if err != nil {
			t.Fatal(err)
		}
		if want := i > 1; over != want {
			t.Errorf("create %d: over = %v, want %v", i, over, want)
		}
	}
	if c, _ := d.store.Count(ctx, "p", "u"); c != n {
		t.Errorf("count = %d, want %d", c, n)
	}

	// Exempt users are counted but never over.
	for i := 0; i < 2; i++ {
		if over, _ := d.OnCreate(ctx, "p", "mod", true); over {
			t.Error("exempt user reported over the limit")
		}
	}
	if c, _ := d.store.Count(ctx, "p", "mod"); c != 2 {
		t.Errorf("exempt count = %d, want 2", c)
	}
}

func TestDuplicateCounter_Reconcile(t *testing.T) {
	ctx := context.Background()
	d := NewDuplicateCounter(counter.NewMemStore())

	d.OnCreate(ctx, "p", "u", false)
	if over, _ := d.OnCreate(ctx, "p", "u", false); !over {
		t.Fatal("second comment should be over the limit")
	}

	// Non-author deletes never change the count.
	d.OnDelete(ctx, "p", "u", false, true)
	if c, _ := d.store.Count(ctx, "p", "u"); c != 2 {
		t.Errorf("count after mod delete = %d, want 2", c)
	}
	// Reconciliation disabled: author delete ignored too.
	d.OnDelete(ctx, "p", "u", true, false)
	if c, _ := d.store.Count(ctx, "p", "u"); c != 2 {
		t.Errorf("count with reconcile off = %d, want 2", c)
	}

	d.OnDelete(ctx, "p", "u", true, true)
	if c, _ := d.store.Count(ctx, "p", "u"); c != 1 {
		t.Errorf("count after author delete = %d, want 1", c)
	}
	if over, _ := d.OnCreate(ctx, "p", "u", false); !over {
		t.Error("third comment should still be over the limit")
	}
}

type failingStore struct{ counter.Store }

func (failingStore) Increment(context.Context, string, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestDuplicateCounter_StoreErrorFailsOpen(t *testing.T) {
	d := NewDuplicateCounter(failingStore{})
	over, err := d.OnCreate(context.Background(), "p", "u", false)
	if err == nil || over {
		t.Errorf("OnCreate() = (%v, %v), want (false, error)", over, err)
	}
}

func TestReplyEnforcer(t *testing.T) {
	ctx := context.Background()
	p := newFakePlatform()
	p.comments["t1_top"] = &platform.Comment{ID: "t1_top", ParentID: "t3_post"}
	p.comments["t1_reply"] = &platform.Comment{ID: "t1_reply", ParentID: "t1_top"}
	r := NewReplyEnforcer(p)

	tests := []struct {
		name    string
		id      string
		exempt  bool
		remove  bool
		locksTo int
	}{
		{"top-level locked", "t1_top", false, false, 1},
		{"top-level locked even when exempt", "t1_top", true, false, 2},
		{"reply removed", "t1_reply", false, true, 2},
		{"exempt reply kept", "t1_reply", true, false, 2},
		{"missing comment", "t1_gone", false, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.EnforceTopLevelOnly(ctx, tt.id, tt.exempt)
			if err != nil {
				t.Fatalf("EnforceTopLevelOnly() error: %v", err)
			}
			if got != tt.remove {
				t.Errorf("remove = %v, want %v", got, tt.remove)
			}
			if len(p.locked) != tt.locksTo {
				t.Errorf("locks = %v, want %d", p.locked, tt.locksTo)
			}
		})
	}
}

func TestExemption(t *testing.T) {
	ctx := context.Background()
	p := newFakePlatform()
	p.mods["alice"] = []string{"all"}
	p.mods["bob"] = []string{}
	p.mods["dave"] = []string{"all"}
	p.deleted["dave"] = true
	x := NewExemption(p, "thread-helper")
	on := cfgOf()
	off := cfgOf(settings.ModsExempt, "false")

	tests := []struct {
		name     string
		username string
		cfg      settings.Values
		want     bool
	}{
		{"moderator", "alice", on, true},
		{"empty permissions", "bob", on, false},
		{"not a moderator", "carol", on, false},
		{"account not found", "dave", on, false},
		{"automoderator", "AutoModerator", on, true},
		{"mod team", "referrals-ModTeam", on, true},
		{"other mod team", "other-ModTeam", on, false},
		{"app account", "thread-helper", on, true},
		{"empty username", "", on, false},
		{"flag off", "alice", off, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := x.IsExempt(ctx, tt.username, testSub, tt.cfg); got != tt.want {
				t.Errorf("IsExempt(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestExemption_LooksUpAccountFirst(t *testing.T) {
	ctx := context.Background()
	p := newFakePlatform()
	p.mods["dave"] = []string{"all"}
	p.deleted["dave"] = true
	x := NewExemption(p, "thread-helper")

	if x.IsModerator(ctx, "dave", testSub) {
		t.Fatal("a missing account must not be a moderator")
	}
	if p.nameLookups != 1 {
		t.Errorf("account lookups = %d, want 1", p.nameLookups)
	}
	if p.permLookups != 0 {
		t.Errorf("permission lookups = %d, want 0 for a missing account", p.permLookups)
	}

	if !x.IsModerator(ctx, "AutoModerator", testSub) {
		t.Fatal("AutoModerator should be a moderator")
	}
	if p.nameLookups != 1 {
		t.Errorf("known accounts should not be looked up, lookups = %d", p.nameLookups)
	}
}
