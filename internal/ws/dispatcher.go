package ws

import (
	"log"

	"github.com/google/uuid"

	"github.com/threadhelper/threadhelper/internal/messaging"
	"github.com/threadhelper/threadhelper/internal/protocol"
)

// Publisher forwards accepted triggers to the helper workers.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// triggerSubjects maps each trigger type to its message bus subject.
var triggerSubjects = map[string]string{
	protocol.TypeCommentCreate: messaging.SubjectCommentCreate,
	protocol.TypeCommentDelete: messaging.SubjectCommentDelete,
	protocol.TypePostSubmit:    messaging.SubjectPostSubmit,
	protocol.TypeModAction:     messaging.SubjectModAction,
}

// TriggerDispatcher validates trigger frames from the runtime and publishes
// them to the bus. Every frame gets exactly one reply: pong, ack or error.
type TriggerDispatcher struct {
	pub    Publisher
	server *Server
}

// NewTriggerDispatcher creates a TriggerDispatcher publishing through pub.
func NewTriggerDispatcher(pub Publisher) *TriggerDispatcher {
	return &TriggerDispatcher{pub: pub}
}

// SetServer assigns the Server used to write replies. The dispatcher is
// created first because NewServer takes Dispatch as its callback.
func (d *TriggerDispatcher) SetServer(server *Server) {
	d.server = server
}

// Dispatch is the onMessage callback: it handles the frame and writes the
// reply back on conn.
func (d *TriggerDispatcher) Dispatch(conn *Connection, data []byte) {
	reply := d.Handle(conn.ID, data)
	if reply == nil {
		return
	}

	var err error
	if d.server != nil {
		err = d.server.Reply(conn, reply)
	} else {
		err = conn.WriteMessage(reply)
	}
	if err != nil {
		log.Printf("ws: failed to send reply conn=%s: %v", conn.ID, err)
	}
}

// Handle processes one frame and returns the encoded reply. The original
// frame bytes are published unchanged.
func (d *TriggerDispatcher) Handle(connID string, data []byte) []byte {
	msgType, evt, err := protocol.ParseTrigger(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", connID, err)
		return d.errorReply(connID, "parse_error", "invalid trigger frame")
	}

	if msgType == protocol.TypePing {
		return d.reply(connID, protocol.TypePong, protocol.PongMsg{})
	}

	if err := evt.Validate(); err != nil {
		log.Printf("ws: invalid %s conn=%s: %v", msgType, connID, err)
		return d.errorReply(connID, "invalid_trigger", err.Error())
	}

	subject := triggerSubjects[msgType]
	if err := d.pub.Publish(subject, data); err != nil {
		log.Printf("ws: publish %s conn=%s: %v", subject, connID, err)
		return d.errorReply(connID, "publish_failed", "trigger could not be queued")
	}

	return d.reply(connID, protocol.TypeAck, protocol.AckMsg{DeliveryID: uuid.New().String()})
}

func (d *TriggerDispatcher) errorReply(connID, code, message string) []byte {
	return d.reply(connID, protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
}

func (d *TriggerDispatcher) reply(connID, msgType string, payload interface{}) []byte {
	data, err := protocol.NewReply(msgType, payload)
	if err != nil {
		log.Printf("ws: failed to build %s reply conn=%s: %v", msgType, connID, err)
		return nil
	}
	return data
}
