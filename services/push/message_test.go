package pushsvc

import (
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
)

func newTestService() *Service {
	conf := core.NewTestConfig()
	conf.Push.WebIcon = "/static/icon.png"
	logger := logsvc.NewDiscard(conf)
	return NewService(NewConsoleGateway(logger), nil, logger, conf)
}

func TestWireData(t *testing.T) {
	at := time.Date(2024, 2, 29, 23, 0, 0, 0, time.FixedZone("WAT", 3600))
	var nilTime *time.Time

	data := wireData(map[string]interface{}{
		"text":    "hello",
		"flag":    true,
		"count":   3,
		"big":     int64(1 << 40),
		"ratio":   0.5,
		"at":      at,
		"at_ptr":  &at,
		"zero":    time.Time{},
		"nil_ptr": nilTime,
		"nothing": nil,
		"kind":    notification.KindNewMessage,
		"list":    []string{"a", "b"},
	})

	assert.Equal(t, map[string]string{
		"text":   "hello",
		"flag":   "true",
		"count":  "3",
		"big":    "1099511627776",
		"ratio":  "0.5",
		"at":     "2024-02-29T22:00:00Z",
		"at_ptr": "2024-02-29T22:00:00Z",
		"kind":   "new_message",
		"list":   `["a","b"]`,
	}, data)
}

func TestService_BuildMessage(t *testing.T) {
	svc := newTestService()
	ev := notification.NewMessage{
		Header:      notification.NewHeader("New message", "Field trip on Friday", notification.PriorityNormal),
		MessageID:   "m1",
		ThreadID:    "t1",
		SenderID:    "teacher",
		Content:     "Field trip on Friday",
		MessageType: "text",
	}

	tests := []struct {
		platform device.Platform
		check    func(t *testing.T, msg *messaging.Message)
	}{
		{
			platform: device.PlatformAndroid,
			check: func(t *testing.T, msg *messaging.Message) {
				require.NotNil(t, msg.Android)
				assert.Nil(t, msg.APNS)
				assert.Nil(t, msg.Webpush)
				assert.Equal(t, "normal", msg.Android.Priority)
				assert.Equal(t, "masomo_messages", msg.Android.Notification.ChannelID)
				assert.Equal(t, "FLUTTER_NOTIFICATION_CLICK", msg.Android.Notification.ClickAction)
				assert.Equal(t, ev.ID, msg.Android.Notification.Tag)
			},
		},
		{
			platform: device.PlatformIOS,
			check: func(t *testing.T, msg *messaging.Message) {
				require.NotNil(t, msg.APNS)
				assert.Nil(t, msg.Android)
				assert.Equal(t, "10", msg.APNS.Headers["apns-priority"])
				aps := msg.APNS.Payload.Aps
				assert.True(t, aps.ContentAvailable)
				assert.True(t, aps.MutableContent)
				assert.Equal(t, "New message", aps.Alert.Title)
				require.NotNil(t, aps.Badge)
				assert.Equal(t, 1, *aps.Badge)
			},
		},
		{
			platform: device.PlatformWeb,
			check: func(t *testing.T, msg *messaging.Message) {
				require.NotNil(t, msg.Webpush)
				assert.Nil(t, msg.Android)
				assert.Equal(t, "/static/icon.png", msg.Webpush.Notification.Icon)
				assert.Len(t, msg.Webpush.Notification.Actions, 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			msg := svc.BuildMessage("token", tt.platform, ev)

			assert.Equal(t, "token", msg.Token)
			require.NotNil(t, msg.Notification)
			assert.Equal(t, "New message", msg.Notification.Title)
			assert.Equal(t, "Field trip on Friday", msg.Notification.Body)
			assert.Equal(t, "new_message", msg.Data["type"])
			assert.Equal(t, "m1", msg.Data["message_id"])
			assert.Equal(t, "t1", msg.Data["thread_id"])
			assert.Equal(t, ev.ID, msg.Data["event_id"])
			tt.check(t, msg)
		})
	}
}

func TestLooksValid(t *testing.T) {
	valid := "dGVzdC1pbnN0YW5jZQ:APA91b" + strings.Repeat("x", 40)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "fcm token", token: valid, want: true},
		{name: "surrounding spaces", token: "  " + valid + "  ", want: true},
		{name: "too short", token: "abc:APA91b", want: false},
		{name: "no colon", token: strings.Replace(valid, ":", "", 1), want: false},
		{name: "no APA91b", token: strings.Replace(valid, "APA91b", "zzzzzz", 1), want: false},
		{name: "empty", token: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksValid(tt.token))
		})
	}
}

func Test_maskToken(t *testing.T) {
	assert.Equal(t, "*****", maskToken("short"))
	assert.Equal(t, "abcdef...uvwxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
}
