package notification

import (
	"time"

	"github.com/google/uuid"
)

type (
	Kind     string
	Priority string
)

const (
	KindNewMessage      Kind = "new_message"
	KindMessageApproved Kind = "message_approved"
	KindMessageRejected Kind = "message_rejected"
	KindGeneric         Kind = "generic"

	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

type (
	// Event is one of NewMessage, MessageApproved, MessageRejected or Generic.
	Event interface {
		Envelope() Header
		Kind() Kind
		// Payload is the event's typed data. Values are turned into strings only by the push adapter.
		Payload() map[string]interface{}
	}

	Header struct {
		ID        string
		Title     string
		Body      string
		Priority  Priority
		CreatedAt time.Time
	}

	NewMessage struct {
		Header
		MessageID   string
		ThreadID    string
		SenderID    string
		Content     string
		MessageType string
	}

	MessageApproved struct {
		Header
		MessageID  string
		ThreadID   string
		SenderID   string
		ApproverID string
		Content    string
		ApprovedAt time.Time
	}

	MessageRejected struct {
		Header
		MessageID string
		ThreadID  string
		Reason    string
	}

	Generic struct {
		Header
		Extra map[string]interface{}
	}
)

var (
	_ Event = NewMessage{}
	_ Event = MessageApproved{}
	_ Event = MessageRejected{}
	_ Event = Generic{}
)

func NewHeader(title, body string, priority Priority) Header {
	if priority == "" {
		priority = PriorityHigh
	}
	return Header{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

func (h Header) Envelope() Header { return h }

func (h Header) payload(kind Kind) map[string]interface{} {
	return map[string]interface{}{
		"type":       string(kind),
		"event_id":   h.ID,
		"title":      h.Title,
		"body":       h.Body,
		"priority":   string(h.Priority),
		"created_at": h.CreatedAt,
	}
}

func (NewMessage) Kind() Kind { return KindNewMessage }

func (ev NewMessage) Payload() map[string]interface{} {
	p := ev.payload(ev.Kind())
	p["message_id"] = ev.MessageID
	p["thread_id"] = ev.ThreadID
	p["sender_id"] = ev.SenderID
	p["content"] = ev.Content
	p["message_type"] = ev.MessageType
	return p
}

func (MessageApproved) Kind() Kind { return KindMessageApproved }

func (ev MessageApproved) Payload() map[string]interface{} {
	p := ev.payload(ev.Kind())
	p["message_id"] = ev.MessageID
	p["thread_id"] = ev.ThreadID
	p["sender_id"] = ev.SenderID
	p["approved_by"] = ev.ApproverID
	p["content"] = ev.Content
	p["approved_at"] = ev.ApprovedAt
	return p
}

func (MessageRejected) Kind() Kind { return KindMessageRejected }

func (ev MessageRejected) Payload() map[string]interface{} {
	p := ev.payload(ev.Kind())
	p["message_id"] = ev.MessageID
	p["thread_id"] = ev.ThreadID
	p["rejection_reason"] = ev.Reason
	return p
}

func (Generic) Kind() Kind { return KindGeneric }

// Payload merges Extra into the common fields; the common fields win on conflicts.
func (ev Generic) Payload() map[string]interface{} {
	p := ev.payload(ev.Kind())
	for k, v := range ev.Extra {
		if _, reserved := p[k]; !reserved {
			p[k] = v
		}
	}
	return p
}
