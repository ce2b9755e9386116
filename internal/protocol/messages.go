// Package protocol defines the trigger events the host runtime delivers and
// the frames the gateway answers with. All messages are JSON and follow an
// envelope with a "type" discriminator. Fields the runtime may omit are
// pointers; Validate enforces what each handler needs before any rule runs.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/threadhelper/threadhelper/internal/platform"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Runtime -> gateway trigger types.
const (
	TypeCommentCreate = "CommentCreate"
	TypeCommentDelete = "CommentDelete"
	TypePostSubmit    = "PostSubmit"
	TypeModAction     = "ModAction"
	TypePing          = "ping"
)

// Gateway -> runtime reply types.
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypePong  = "pong"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("protocol: invalid trigger")

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest can be decoded into the concrete event later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Shared parts
// ---------------------------------------------------------------------------

// Author is the acting user as snapshotted by the runtime.
type Author struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Flair *platform.Flair `json:"flair,omitempty"`
	Karma *int64          `json:"karma,omitempty"`
}

// Subreddit identifies the community the event happened in.
type Subreddit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeleteSource says who deleted a comment.
type DeleteSource int

const (
	SourceUnrecognized DeleteSource = -1
	SourceUnknown      DeleteSource = 0
	SourceUser         DeleteSource = 1
	SourceAdmin        DeleteSource = 2
	SourceModerator    DeleteSource = 3
)

// ---------------------------------------------------------------------------
// Trigger events
// ---------------------------------------------------------------------------

// CommentCreate is delivered for every new comment.
type CommentCreate struct {
	Type      string            `json:"type"`
	Post      *platform.Post    `json:"post,omitempty"`
	Comment   *platform.Comment `json:"comment,omitempty"`
	Author    *Author           `json:"author,omitempty"`
	Subreddit *Subreddit        `json:"subreddit,omitempty"`
}

// Validate checks that the event identifies post, comment, author and
// subreddit.
func (e *CommentCreate) Validate() error {
	switch {
	case e.Post == nil || e.Post.ID == "":
		return fmt.Errorf("%w: %s without post", ErrInvalid, TypeCommentCreate)
	case e.Comment == nil || e.Comment.ID == "":
		return fmt.Errorf("%w: %s without comment", ErrInvalid, TypeCommentCreate)
	case e.Author == nil || e.Author.ID == "":
		return fmt.Errorf("%w: %s without author", ErrInvalid, TypeCommentCreate)
	case e.Subreddit == nil || e.Subreddit.Name == "":
		return fmt.Errorf("%w: %s without subreddit", ErrInvalid, TypeCommentCreate)
	}
	return nil
}

// CommentDelete is delivered when a comment is deleted by anyone.
type CommentDelete struct {
	Type      string       `json:"type"`
	CommentID string       `json:"comment_id"`
	PostID    string       `json:"post_id"`
	Author    *Author      `json:"author,omitempty"`
	Subreddit *Subreddit   `json:"subreddit,omitempty"`
	Source    DeleteSource `json:"source"`
}

// Validate checks that the event identifies post, author and subreddit.
func (e *CommentDelete) Validate() error {
	switch {
	case e.PostID == "":
		return fmt.Errorf("%w: %s without post", ErrInvalid, TypeCommentDelete)
	case e.Author == nil || e.Author.ID == "":
		return fmt.Errorf("%w: %s without author", ErrInvalid, TypeCommentDelete)
	case e.Subreddit == nil || e.Subreddit.Name == "":
		return fmt.Errorf("%w: %s without subreddit", ErrInvalid, TypeCommentDelete)
	}
	return nil
}

// PostSubmit is delivered for every new post.
type PostSubmit struct {
	Type      string         `json:"type"`
	Post      *platform.Post `json:"post,omitempty"`
	Author    *Author        `json:"author,omitempty"`
	Subreddit *Subreddit     `json:"subreddit,omitempty"`
}

// Validate checks that the event identifies post and subreddit.
func (e *PostSubmit) Validate() error {
	switch {
	case e.Post == nil || e.Post.ID == "":
		return fmt.Errorf("%w: %s without post", ErrInvalid, TypePostSubmit)
	case e.Subreddit == nil || e.Subreddit.Name == "":
		return fmt.Errorf("%w: %s without subreddit", ErrInvalid, TypePostSubmit)
	}
	return nil
}

// ModAction is delivered for moderator actions.
type ModAction struct {
	Type          string            `json:"type"`
	Action        string            `json:"action"`
	TargetPost    *platform.Post    `json:"target_post,omitempty"`
	TargetComment *platform.Comment `json:"target_comment,omitempty"`
	Subreddit     *Subreddit        `json:"subreddit,omitempty"`
}

// Validate checks that the event names an action and a subreddit.
func (e *ModAction) Validate() error {
	switch {
	case e.Action == "":
		return fmt.Errorf("%w: %s without action", ErrInvalid, TypeModAction)
	case e.Subreddit == nil || e.Subreddit.Name == "":
		return fmt.Errorf("%w: %s without subreddit", ErrInvalid, TypeModAction)
	}
	return nil
}

// Trigger is implemented by every trigger event.
type Trigger interface {
	Validate() error
}

// ---------------------------------------------------------------------------
// Gateway replies
// ---------------------------------------------------------------------------

// AckMsg confirms a trigger was accepted for processing.
type AckMsg struct {
	Type       string `json:"type"`
	DeliveryID string `json:"delivery_id"`
}

// ErrorMsg reports a rejected frame.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a runtime ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseTrigger parses raw bytes into a typed trigger event. It returns the
// type string, the decoded event (a pointer to one of the trigger structs, or
// nil for ping), and any decoding error. Unknown types are an error. Parsing
// does not validate; callers run Validate.
func ParseTrigger(data []byte) (string, Trigger, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		evt Trigger
		err error
	)

	switch env.Type {
	case TypeCommentCreate:
		var m CommentCreate
		err = json.Unmarshal(env.Raw, &m)
		evt = &m
	case TypeCommentDelete:
		var m CommentDelete
		err = json.Unmarshal(env.Raw, &m)
		evt = &m
	case TypePostSubmit:
		var m PostSubmit
		err = json.Unmarshal(env.Raw, &m)
		evt = &m
	case TypeModAction:
		var m ModAction
		err = json.Unmarshal(env.Raw, &m)
		evt = &m
	case TypePing:
		return env.Type, nil, nil
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown trigger type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, evt, nil
}

// NewReply creates a JSON-encoded gateway reply. The msgType is injected into
// the payload under the "type" key.
func NewReply(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal reply: %w", err)
	}
	return out, nil
}
