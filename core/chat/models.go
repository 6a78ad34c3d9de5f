package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/user"
)

type (
	Status      string
	MessageType string
	ThreadType  string
)

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"

	ThreadDirect ThreadType = "direct"
	ThreadGroup  ThreadType = "group"
)

type Message struct {
	ID              string      `json:"id"`
	ThreadID        string      `json:"thread_id"`
	SenderID        string      `json:"sender_id"`
	Content         string      `json:"content"`
	Type            MessageType `json:"message_type"`
	ApprovalStatus  Status      `json:"approval_status"`
	RejectionReason *string     `json:"rejection_reason"`
	ApproverID      *string     `json:"approved_by"`
	ApprovedAt      *time.Time  `json:"approved_at"` // UTC
	Version         int         `json:"-"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

// Approve moves a pending message to approved.
func (m Message) Approve(approverID string, at time.Time) (Message, error) {
	if m.ApprovalStatus != StatusPending {
		return m, newInvalidStateError(m, "approve", "status must be pending")
	}
	at = at.UTC()
	m.ApprovalStatus = StatusApproved
	m.RejectionReason = nil
	m.ApproverID = &approverID
	m.ApprovedAt = &at
	return m.touch(at), nil
}

// Reject moves a pending message to rejected. The approver is not kept on the message.
func (m Message) Reject(reason string, at time.Time) (Message, error) {
	if m.ApprovalStatus != StatusPending {
		return m, newInvalidStateError(m, "reject", "status must be pending")
	}
	m.ApprovalStatus = StatusRejected
	m.RejectionReason = &reason
	m.ApproverID = nil
	m.ApprovedAt = nil
	return m.touch(at), nil
}

// Edit replaces the content of a pending or rejected message. A rejected message goes back to pending.
// Approved messages are immutable.
func (m Message) Edit(editorID, content string, at time.Time) (Message, error) {
	if editorID != m.SenderID {
		return m, newInvalidStateError(m, "edit", "editor must be the sender")
	}
	switch m.ApprovalStatus {
	case StatusPending:
	case StatusRejected:
		m.ApprovalStatus = StatusPending
	default:
		return m, newInvalidStateError(m, "edit", "status must be pending or rejected")
	}
	m.Content = content
	m.RejectionReason = nil
	m.ApproverID = nil
	m.ApprovedAt = nil
	return m.touch(at), nil
}

func (m Message) touch(at time.Time) Message {
	m.Version++
	m.UpdatedAt = at.UTC()
	return m
}

// VisibleTo reports whether `reader` may see the message: approved messages are visible to everyone,
// anything else only to its sender, its approver and moderators.
func (m Message) VisibleTo(reader user.Identity) bool {
	switch {
	case m.ApprovalStatus == StatusApproved:
		return true
	case reader.ID != "" && reader.ID == m.SenderID:
		return true
	case m.ApproverID != nil && reader.ID == *m.ApproverID:
		return true
	default:
		return reader.IsModerator()
	}
}

type Participant struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role"`
}

type Thread struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Type         ThreadType    `json:"thread_type"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"` // UTC
}

func (t Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// RecipientsExcept lists every participant but `userID`.
func (t Thread) RecipientsExcept(userID string) []string {
	ids := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		if p.UserID != userID {
			ids = append(ids, p.UserID)
		}
	}
	return core.Unique(ids)
}

// NewMessage contains information needed to post a Message in a Thread.
type NewMessage struct {
	Content string      `json:"content" validate:"required,notblank,max=5000"`
	Type    MessageType `json:"message_type" validate:"omitempty,oneof=text image file system"`
}

func (nm *NewMessage) clean() {
	nm.Content = core.CleanString(nm.Content)
	if nm.Type == "" {
		nm.Type = TypeText
	}
}

func (nm NewMessage) build(threadID, senderID string, status Status, now time.Time) Message {
	msg := Message{
		ID:             uuid.NewString(),
		ThreadID:       threadID,
		SenderID:       senderID,
		Content:        nm.Content,
		Type:           nm.Type,
		ApprovalStatus: status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == StatusApproved {
		// auto-approved: the sender vouches for it
		msg.ApproverID = &senderID
		msg.ApprovedAt = &now
	}
	return msg
}

type EditMessage struct {
	Content string `json:"content" validate:"required,notblank,max=5000"`
}

type RejectMessage struct {
	Reason string `json:"rejection_reason" validate:"required,notblank,max=1000"`
}

// NewThread contains information needed to create a Thread.
type NewThread struct {
	Title        string        `json:"title" validate:"max=255"`
	Type         ThreadType    `json:"thread_type" validate:"required,oneof=direct group"`
	Participants []Participant `json:"participants" validate:"required,min=2,dive"`
}
