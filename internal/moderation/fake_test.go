package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/threadhelper/threadhelper/internal/counter"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/protocol"
	"github.com/threadhelper/threadhelper/internal/settings"
)

type removal struct {
	id   string
	spam bool
}

// fakePlatform is an in-memory platform.Client that records every action.
type fakePlatform struct {
	mu sync.Mutex

	comments map[string]*platform.Comment
	posts    map[string]*platform.Post
	users    map[string]*platform.User
	mods     map[string][]string
	deleted  map[string]bool // usernames whose account lookup fails

	removed       []removal
	locked        []string
	submitted     []string
	distinguished []string
	messages      []platform.PrivateMessage

	userLookups int
	nameLookups int
	permLookups int
	sendErr     error
	removeErr   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		comments: make(map[string]*platform.Comment),
		posts:    make(map[string]*platform.Post),
		users:    make(map[string]*platform.User),
		mods:     make(map[string][]string),
		deleted:  make(map[string]bool),
	}
}

func (f *fakePlatform) Remove(_ context.Context, id string, spam bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, removal{id: id, spam: spam})
	return nil
}

func (f *fakePlatform) Lock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, id)
	return nil
}

func (f *fakePlatform) SubmitComment(_ context.Context, parentID, text string) (*platform.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return &platform.Comment{ID: "t1_notice", ParentID: parentID, Body: text}, nil
}

func (f *fakePlatform) Distinguish(_ context.Context, id string, sticky bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sticky {
		f.distinguished = append(f.distinguished, id)
	}
	return nil
}

func (f *fakePlatform) GetComment(_ context.Context, id string) (*platform.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return c, nil
}

func (f *fakePlatform) GetPost(_ context.Context, id string) (*platform.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return p, nil
}

func (f *fakePlatform) GetUserByID(_ context.Context, id string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLookups++
	u, ok := f.users[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return u, nil
}

// GetUserByUsername finds registered users by name. Any name with a mods
// entry also resolves, unless it is marked deleted.
func (f *fakePlatform) GetUserByUsername(_ context.Context, username string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameLookups++
	if f.deleted[username] {
		return nil, platform.ErrNotFound
	}
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	if _, ok := f.mods[username]; ok {
		return &platform.User{Username: username}, nil
	}
	return nil, platform.ErrNotFound
}

func (f *fakePlatform) GetModPermissions(_ context.Context, username, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permLookups++
	return f.mods[username], nil
}

func (f *fakePlatform) SendPrivateMessage(_ context.Context, msg platform.PrivateMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePlatform) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.removed))
	for i, r := range f.removed {
		ids[i] = r.id
	}
	return ids
}

// fixedNow is the clock used by every engine under test.
var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(p *fakePlatform) (*Engine, *counter.MemStore) {
	store := counter.NewMemStore()
	e := NewEngine(p, store, EngineConfig{
		AppAccount: "thread-helper",
		Now:        func() time.Time { return fixedNow },
	})
	return e, store
}

func cfgOf(kv ...string) settings.Values {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return settings.NewValues(m)
}

const (
	testSub    = "referrals"
	threadID   = "t3_thread"
	threadLink = "/r/referrals/comments/thread/"
)

// threadComment builds a top-level CommentCreate on a post flaired
// "Megathread" and titled "Weekly Referral Thread", and registers the
// comment with p so lookups find it.
func threadComment(p *fakePlatform, userID, username, commentID, body string) *protocol.CommentCreate {
	c := &platform.Comment{
		ID:        commentID,
		ParentID:  threadID,
		PostID:    threadID,
		Permalink: threadLink + commentID + "/",
		Body:      body,
	}
	p.mu.Lock()
	p.comments[commentID] = c
	p.mu.Unlock()
	return &protocol.CommentCreate{
		Type: protocol.TypeCommentCreate,
		Post: &platform.Post{
			ID:        threadID,
			Permalink: threadLink,
			Title:     "Weekly Referral Thread",
			Flair:     &platform.Flair{Text: "Megathread"},
		},
		Comment:   c,
		Author:    &protocol.Author{ID: userID, Name: username},
		Subreddit: &protocol.Subreddit{ID: "t5_refs", Name: testSub},
	}
}
