package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reply codes understood from the host runtime.
const (
	CodeNotFound       = "not_found"
	CodeNotWhitelisted = "not_whitelisted"
)

// Requester performs one request/reply exchange. messaging.NATSClient
// satisfies it.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// reply is the envelope every platform.* responder answers with.
type reply struct {
	OK    bool            `json:"ok"`
	Code  string          `json:"code,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NATSClient implements Client by forwarding each call to the host runtime
// on subject "<prefix>.<operation>".
type NATSClient struct {
	req     Requester
	prefix  string
	timeout time.Duration
}

// NewNATSClient creates a platform client. timeout bounds every call that
// does not already carry an earlier deadline.
func NewNATSClient(req Requester, prefix string, timeout time.Duration) *NATSClient {
	return &NATSClient{req: req, prefix: prefix, timeout: timeout}
}

func (c *NATSClient) call(ctx context.Context, op string, args, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("platform: %s: marshal: %w", op, err)
	}
	raw, err := c.req.Request(ctx, c.prefix+"."+op, body)
	if err != nil {
		return fmt.Errorf("platform: %s: %w", op, err)
	}
	return decodeReply(op, raw, out)
}

func decodeReply(op string, raw []byte, out any) error {
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("platform: %s: decode reply: %w", op, err)
	}
	if !r.OK {
		switch r.Code {
		case CodeNotFound:
			return ErrNotFound
		case CodeNotWhitelisted:
			return ErrNotWhitelisted
		}
		return fmt.Errorf("platform: %s: %s", op, r.Error)
	}
	if out == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		if out != nil {
			return ErrNotFound
		}
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("platform: %s: decode data: %w", op, err)
	}
	return nil
}

type idArgs struct {
	ID string `json:"id"`
}

// Remove removes a post or comment, optionally marking it as spam.
func (c *NATSClient) Remove(ctx context.Context, id string, spam bool) error {
	return c.call(ctx, "remove", struct {
		ID   string `json:"id"`
		Spam bool   `json:"spam"`
	}{id, spam}, nil)
}

// Lock locks a post or comment against further replies.
func (c *NATSClient) Lock(ctx context.Context, id string) error {
	return c.call(ctx, "lock", idArgs{id}, nil)
}

// SubmitComment posts a comment as the app account under parentID.
func (c *NATSClient) SubmitComment(ctx context.Context, parentID, text string) (*Comment, error) {
	var out Comment
	err := c.call(ctx, "submit_comment", struct {
		ParentID string `json:"parent_id"`
		Text     string `json:"text"`
	}{parentID, text}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Distinguish marks a comment as a moderator comment, optionally stickied.
func (c *NATSClient) Distinguish(ctx context.Context, id string, sticky bool) error {
	return c.call(ctx, "distinguish", struct {
		ID     string `json:"id"`
		Sticky bool   `json:"sticky"`
	}{id, sticky}, nil)
}

// GetComment fetches a comment by id.
func (c *NATSClient) GetComment(ctx context.Context, id string) (*Comment, error) {
	var out Comment
	if err := c.call(ctx, "get_comment", idArgs{id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPost fetches a post by id.
func (c *NATSClient) GetPost(ctx context.Context, id string) (*Post, error) {
	var out Post
	if err := c.call(ctx, "get_post", idArgs{id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserByID fetches a user profile by account id.
func (c *NATSClient) GetUserByID(ctx context.Context, id string) (*User, error) {
	var out User
	if err := c.call(ctx, "get_user", idArgs{id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserByUsername fetches a user profile by username.
func (c *NATSClient) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var out User
	err := c.call(ctx, "get_user_by_username", struct {
		Username string `json:"username"`
	}{username}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModPermissions returns the moderator permissions username holds in
// subreddit. Non-moderators have none.
func (c *NATSClient) GetModPermissions(ctx context.Context, username, subreddit string) ([]string, error) {
	var out []string
	err := c.call(ctx, "get_mod_permissions", struct {
		Username  string `json:"username"`
		Subreddit string `json:"subreddit"`
	}{username, subreddit}, &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// SendPrivateMessage delivers msg from the app account.
func (c *NATSClient) SendPrivateMessage(ctx context.Context, msg PrivateMessage) error {
	return c.call(ctx, "send_private_message", msg, nil)
}
