// Package trigger runs the helper side of trigger delivery: it consumes
// trigger events from NATS, loads the installation settings for the event's
// subreddit and hands the event to the moderation engine.
package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/threadhelper/threadhelper/internal/messaging"
	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/moderation"
	"github.com/threadhelper/threadhelper/internal/protocol"
	"github.com/threadhelper/threadhelper/internal/settings"
)

// Subscriber registers queue-group subscriptions. messaging.NATSClient
// satisfies it.
type Subscriber interface {
	QueueSubscribe(subject, queue string, handler func(data []byte)) error
}

// Handler handles decoded trigger events. moderation.Engine satisfies it.
type Handler interface {
	HandleCommentCreate(ctx context.Context, evt *protocol.CommentCreate, cfg settings.Values) (moderation.Outcome, error)
	HandleCommentDelete(ctx context.Context, evt *protocol.CommentDelete, cfg settings.Values) (moderation.Outcome, error)
	HandlePostSubmit(ctx context.Context, evt *protocol.PostSubmit, cfg settings.Values) (moderation.Outcome, error)
	HandleModAction(ctx context.Context, evt *protocol.ModAction, cfg settings.Values) (moderation.Outcome, error)
}

// Outcomes recorded in addition to moderation.Outcome.
const (
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// Subjects lists the trigger subjects the service consumes.
var Subjects = []string{
	messaging.SubjectCommentCreate,
	messaging.SubjectCommentDelete,
	messaging.SubjectPostSubmit,
	messaging.SubjectModAction,
}

// Config holds service settings.
type Config struct {
	Queue   string        // NATS queue group shared by helper instances
	Timeout time.Duration // upper bound for handling one event
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Queue:   messaging.QueueHelpers,
		Timeout: 30 * time.Second,
	}
}

// Service is the trigger consumer.
type Service struct {
	sub     Subscriber
	handler Handler
	source  settings.Source
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a trigger service.
func NewService(sub Subscriber, handler Handler, source settings.Source, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		sub:     sub,
		handler: handler,
		source:  source,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to every trigger subject.
func (s *Service) Start() error {
	for _, subject := range Subjects {
		if err := s.sub.QueueSubscribe(subject, s.config.Queue, func(data []byte) {
			s.Handle(data)
		}); err != nil {
			return err
		}
	}
	log.Printf("[helper] service started (queue %s)", s.config.Queue)
	return nil
}

// Stop cancels in-flight handling.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[helper] service stopped")
}

// Handle decodes and processes one trigger message. It never panics and
// returns the recorded outcome.
func (s *Service) Handle(data []byte) string {
	start := time.Now()
	defer func() {
		metrics.TriggerLatency.Observe(time.Since(start).Seconds())
	}()

	msgType, evt, err := protocol.ParseTrigger(data)
	if err == nil && evt != nil {
		err = evt.Validate()
	}
	if err != nil {
		log.Printf("[helper] invalid trigger: %v", err)
		return s.record(msgType, outcomeInvalid)
	}
	if evt == nil {
		return ""
	}

	ctx := s.ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	outcome, err := s.dispatch(ctx, evt)
	if err != nil {
		log.Printf("[helper] %s: %v", msgType, err)
		return s.record(msgType, outcomeError)
	}
	return s.record(msgType, string(outcome))
}

func (s *Service) record(msgType, outcome string) string {
	metrics.TriggersTotal.WithLabelValues(typeLabel(msgType), outcome).Inc()
	return outcome
}

// dispatch loads settings and calls the handler for evt. A panic while
// handling is turned into an error.
func (s *Service) dispatch(ctx context.Context, evt protocol.Trigger) (outcome moderation.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger: panic: %v", r)
		}
	}()

	cfg, err := s.source.Load(ctx, subredditOf(evt))
	if err != nil {
		return "", fmt.Errorf("trigger: load settings: %w", err)
	}

	switch e := evt.(type) {
	case *protocol.CommentCreate:
		return s.handler.HandleCommentCreate(ctx, e, cfg)
	case *protocol.CommentDelete:
		return s.handler.HandleCommentDelete(ctx, e, cfg)
	case *protocol.PostSubmit:
		return s.handler.HandlePostSubmit(ctx, e, cfg)
	case *protocol.ModAction:
		return s.handler.HandleModAction(ctx, e, cfg)
	}
	return "", fmt.Errorf("trigger: unhandled event %T", evt)
}

func subredditOf(evt protocol.Trigger) string {
	switch e := evt.(type) {
	case *protocol.CommentCreate:
		return e.Subreddit.Name
	case *protocol.CommentDelete:
		return e.Subreddit.Name
	case *protocol.PostSubmit:
		return e.Subreddit.Name
	case *protocol.ModAction:
		return e.Subreddit.Name
	}
	return ""
}

// typeLabel keeps the metric label set closed.
func typeLabel(msgType string) string {
	switch msgType {
	case protocol.TypeCommentCreate, protocol.TypeCommentDelete, protocol.TypePostSubmit, protocol.TypeModAction:
		return msgType
	}
	return "unknown"
}
