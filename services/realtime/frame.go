package realtimesvc

import (
	"time"

	"github.com/trezcool/masomo-chat/core/notification"
)

// server -> client
const (
	FrameConnectionEstablished = "connection_established"
	FrameNotification          = "notification"
	FramePong                  = "pong"
)

// client -> server
const (
	FramePing        = "ping"
	FrameHeartbeat   = "heartbeat"
	FrameSubscribe   = "subscribe_notifications"
	FrameUnsubscribe = "unsubscribe_notifications"
)

type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func notificationFrame(ev notification.Event) Frame {
	h := ev.Envelope()
	return Frame{
		Type: FrameNotification,
		Data: map[string]interface{}{
			"id":         h.ID,
			"kind":       string(ev.Kind()),
			"title":      h.Title,
			"body":       h.Body,
			"priority":   string(h.Priority),
			"created_at": h.CreatedAt,
			"data":       ev.Payload(),
		},
	}
}

func pongFrame(now time.Time) Frame {
	return Frame{Type: FramePong, Data: map[string]interface{}{"timestamp": now.UTC()}}
}
