package ws

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/gobwas/ws/wsutil"

	"github.com/threadhelper/threadhelper/internal/messaging"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{subject: subject, data: data})
	return nil
}

type replyFrame struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	DeliveryID string `json:"delivery_id"`
}

func decodeReply(t *testing.T, data []byte) replyFrame {
	t.Helper()
	var r replyFrame
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("reply is not JSON: %v (%s)", err, data)
	}
	return r
}

const validCreate = `{"type":"CommentCreate","post":{"id":"t3_p"},"comment":{"id":"t1_c","parent_id":"t3_p"},"author":{"id":"t2_u","name":"alice"},"subreddit":{"name":"referrals"}}`

func TestTriggerDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		wantType    string
		wantCode    string
		wantSubject string
	}{
		{
			name:        "comment create is published",
			frame:       validCreate,
			wantType:    "ack",
			wantSubject: messaging.SubjectCommentCreate,
		},
		{
			name:        "comment delete is published",
			frame:       `{"type":"CommentDelete","comment_id":"t1_c","post_id":"t3_p","author":{"id":"t2_u"},"subreddit":{"name":"referrals"},"source":1}`,
			wantType:    "ack",
			wantSubject: messaging.SubjectCommentDelete,
		},
		{
			name:        "post submit is published",
			frame:       `{"type":"PostSubmit","post":{"id":"t3_p","title":"hi"},"author":{"id":"t2_u","name":"bob"},"subreddit":{"name":"referrals"}}`,
			wantType:    "ack",
			wantSubject: messaging.SubjectPostSubmit,
		},
		{
			name:        "mod action is published",
			frame:       `{"type":"ModAction","action":"unsticky","target_post":{"id":"t3_p"},"subreddit":{"name":"referrals"}}`,
			wantType:    "ack",
			wantSubject: messaging.SubjectModAction,
		},
		{
			name:     "ping answers pong",
			frame:    `{"type":"ping"}`,
			wantType: "pong",
		},
		{
			name:     "malformed json",
			frame:    `{not json`,
			wantType: "error",
			wantCode: "parse_error",
		},
		{
			name:     "unknown type",
			frame:    `{"type":"AppInstall"}`,
			wantType: "error",
			wantCode: "parse_error",
		},
		{
			name:     "missing comment",
			frame:    `{"type":"CommentCreate","post":{"id":"t3_p"},"author":{"id":"t2_u"},"subreddit":{"name":"referrals"}}`,
			wantType: "error",
			wantCode: "invalid_trigger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			d := NewTriggerDispatcher(pub)

			r := decodeReply(t, d.Handle("conn-1", []byte(tt.frame)))
			if r.Type != tt.wantType {
				t.Fatalf("reply type = %q, want %q", r.Type, tt.wantType)
			}
			if r.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", r.Code, tt.wantCode)
			}

			if tt.wantSubject == "" {
				if len(pub.sent) != 0 {
					t.Fatalf("published %d frames, want none", len(pub.sent))
				}
				return
			}
			if len(pub.sent) != 1 {
				t.Fatalf("published %d frames, want 1", len(pub.sent))
			}
			if pub.sent[0].subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", pub.sent[0].subject, tt.wantSubject)
			}
			if string(pub.sent[0].data) != tt.frame {
				t.Errorf("published frame was modified: %s", pub.sent[0].data)
			}
			if r.DeliveryID == "" {
				t.Error("ack is missing a delivery id")
			}
		})
	}
}

func TestTriggerDispatcher_PublishFailure(t *testing.T) {
	d := NewTriggerDispatcher(&fakePublisher{err: errors.New("nats: connection closed")})

	r := decodeReply(t, d.Handle("conn-1", []byte(validCreate)))
	if r.Type != "error" || r.Code != "publish_failed" {
		t.Fatalf("reply = %+v, want publish_failed error", r)
	}
}

func TestTriggerDispatcher_DistinctDeliveryIDs(t *testing.T) {
	d := NewTriggerDispatcher(&fakePublisher{})

	a := decodeReply(t, d.Handle("conn-1", []byte(validCreate)))
	b := decodeReply(t, d.Handle("conn-1", []byte(validCreate)))
	if a.DeliveryID == b.DeliveryID {
		t.Fatalf("delivery ids should differ, both %q", a.DeliveryID)
	}
}

func TestTriggerDispatcher_DispatchWritesReply(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := &Connection{ID: "conn-1", Conn: server}
	defer conn.Close()

	d := NewTriggerDispatcher(&fakePublisher{})
	go d.Dispatch(conn, []byte(`{"type":"ping"}`))

	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if r := decodeReply(t, data); r.Type != "pong" {
		t.Fatalf("reply type = %q, want pong", r.Type)
	}
}
