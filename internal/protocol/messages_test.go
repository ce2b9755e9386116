package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/threadhelper/threadhelper/internal/platform"
)

var (
	postStub    = platform.Post{ID: "t3_p1"}
	commentStub = platform.Comment{ID: "t1_c1", ParentID: "t3_p1"}
)

// ---------------------------------------------------------------------------
// Test: Parsing a CommentCreate trigger
// ---------------------------------------------------------------------------

func TestParseTrigger_CommentCreate(t *testing.T) {
	input := []byte(`{
		"type":"CommentCreate",
		"post":{"id":"t3_p1","title":"Weekly Referral Thread","flair":{"text":"Megathread"}},
		"comment":{"id":"t1_c1","parent_id":"t3_p1","body":"my code"},
		"author":{"id":"t2_u1","name":"alice","karma":42},
		"subreddit":{"id":"t5_s","name":"referrals"}
	}`)

	msgType, evt, err := ParseTrigger(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeCommentCreate {
		t.Fatalf("expected type %q, got %q", TypeCommentCreate, msgType)
	}

	cc, ok := evt.(*CommentCreate)
	if !ok {
		t.Fatalf("expected *CommentCreate, got %T", evt)
	}
	if err := cc.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cc.Post.FlairText() != "Megathread" {
		t.Errorf("flair = %q", cc.Post.FlairText())
	}
	if cc.Author.Karma == nil || *cc.Author.Karma != 42 {
		t.Errorf("karma = %v, want 42", cc.Author.Karma)
	}
	if cc.Author.Flair != nil {
		t.Errorf("author flair should be absent, got %+v", cc.Author.Flair)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a CommentDelete trigger
// ---------------------------------------------------------------------------

func TestParseTrigger_CommentDelete(t *testing.T) {
	input := []byte(`{"type":"CommentDelete","comment_id":"t1_c1","post_id":"t3_p1","author":{"id":"t2_u1"},"subreddit":{"name":"referrals"},"source":1}`)

	_, evt, err := ParseTrigger(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cd, ok := evt.(*CommentDelete)
	if !ok {
		t.Fatalf("expected *CommentDelete, got %T", evt)
	}
	if cd.Source != SourceUser {
		t.Errorf("source = %d, want %d", cd.Source, SourceUser)
	}
	if err := cd.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestParseTrigger_ModActionAndPost(t *testing.T) {
	_, evt, err := ParseTrigger([]byte(`{"type":"ModAction","action":"unsticky","target_post":{"id":"t3_p"},"subreddit":{"name":"s"}}`))
	if err != nil {
		t.Fatalf("ModAction: %v", err)
	}
	if ma := evt.(*ModAction); ma.Action != "unsticky" || ma.TargetComment != nil {
		t.Errorf("ModAction = %+v", ma)
	}

	_, evt, err = ParseTrigger([]byte(`{"type":"PostSubmit","post":{"id":"t3_p","url":"https://example.com"},"subreddit":{"name":"s"}}`))
	if err != nil {
		t.Fatalf("PostSubmit: %v", err)
	}
	if err := evt.Validate(); err != nil {
		t.Errorf("PostSubmit Validate() error: %v", err)
	}
}

func TestParseTrigger_Ping(t *testing.T) {
	msgType, evt, err := ParseTrigger([]byte(`{"type":"ping"}`))
	if err != nil || msgType != TypePing || evt != nil {
		t.Errorf("ping = (%q, %v, %v)", msgType, evt, err)
	}
}

func TestParseTrigger_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `not json`},
		{"missing type", `{"post":{}}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"PostDelete"}`},
		{"bad payload", `{"type":"CommentDelete","source":"user"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseTrigger([]byte(tt.input)); err == nil {
				t.Errorf("ParseTrigger(%s) expected error", tt.input)
			}
		})
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		evt  Trigger
	}{
		{"comment create without comment", &CommentCreate{
			Post: &postStub, Author: &Author{ID: "u"}, Subreddit: &Subreddit{Name: "s"},
		}},
		{"comment create without author", &CommentCreate{
			Post: &postStub, Comment: &commentStub, Subreddit: &Subreddit{Name: "s"},
		}},
		{"comment delete without post", &CommentDelete{Author: &Author{ID: "u"}, Subreddit: &Subreddit{Name: "s"}}},
		{"post submit without subreddit", &PostSubmit{Post: &postStub}},
		{"mod action without action", &ModAction{Subreddit: &Subreddit{Name: "s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Building gateway replies
// ---------------------------------------------------------------------------

func TestNewReply_Ack(t *testing.T) {
	data, err := NewReply(TypeAck, AckMsg{DeliveryID: "d-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["type"] != TypeAck {
		t.Errorf("type = %v, want %q", m["type"], TypeAck)
	}
	if m["delivery_id"] != "d-1" {
		t.Errorf("delivery_id = %v", m["delivery_id"])
	}
}

func TestNewReply_Error(t *testing.T) {
	data, err := NewReply(TypeError, ErrorMsg{Code: "invalid", Message: "bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var e ErrorMsg
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Type != TypeError || e.Code != "invalid" {
		t.Errorf("reply = %+v", e)
	}
}
