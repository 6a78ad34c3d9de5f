package chat

import (
	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/notification"
)

const previewLen = 100

func newMessageEvent(msg Message) notification.NewMessage {
	return notification.NewMessage{
		Header:      notification.NewHeader("New message", core.Truncate(msg.Content, previewLen), notification.PriorityHigh),
		MessageID:   msg.ID,
		ThreadID:    msg.ThreadID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: string(msg.Type),
	}
}

func messageApprovedEvent(msg Message) notification.MessageApproved {
	ev := notification.MessageApproved{
		Header:    notification.NewHeader("New message", core.Truncate(msg.Content, previewLen), notification.PriorityHigh),
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
	}
	if msg.ApproverID != nil {
		ev.ApproverID = *msg.ApproverID
	}
	if msg.ApprovedAt != nil {
		ev.ApprovedAt = *msg.ApprovedAt
	}
	return ev
}

func messageRejectedEvent(msg Message) notification.MessageRejected {
	var reason string
	if msg.RejectionReason != nil {
		reason = *msg.RejectionReason
	}
	return notification.MessageRejected{
		Header:    notification.NewHeader("Message not approved", "Your message was not approved: "+core.Truncate(reason, previewLen), notification.PriorityNormal),
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Reason:    reason,
	}
}
