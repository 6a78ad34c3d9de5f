package pushsvc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
)

const apnsPriorityImmediate = "10"

// wireData converts an event payload to the string-only map the gateway accepts.
func wireData(payload map[string]interface{}) map[string]string {
	data := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			data[k] = val
		case bool:
			data[k] = strconv.FormatBool(val)
		case int:
			data[k] = strconv.Itoa(val)
		case int64:
			data[k] = strconv.FormatInt(val, 10)
		case float64:
			data[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case time.Time:
			if val.IsZero() {
				continue
			}
			data[k] = val.UTC().Format(time.RFC3339)
		case *time.Time:
			if val == nil || val.IsZero() {
				continue
			}
			data[k] = val.UTC().Format(time.RFC3339)
		case fmt.Stringer:
			data[k] = val.String()
		default:
			if rv := reflect.ValueOf(val); rv.Kind() == reflect.String {
				data[k] = rv.String()
				continue
			}
			if b, err := json.Marshal(val); err == nil {
				data[k] = string(b)
			} else {
				data[k] = fmt.Sprintf("%v", val)
			}
		}
	}
	return data
}

// BuildMessage builds the gateway envelope of ev for one token: a notification block,
// the string-only data block and the block of the token's platform.
func (svc *Service) BuildMessage(token string, platform device.Platform, ev notification.Event) *messaging.Message {
	h := ev.Envelope()
	msg := &messaging.Message{
		Token: token,
		Data:  wireData(ev.Payload()),
		Notification: &messaging.Notification{
			Title: h.Title,
			Body:  h.Body,
		},
	}

	switch platform {
	case device.PlatformAndroid:
		priority := "high"
		if h.Priority == notification.PriorityNormal {
			priority = "normal"
		}
		msg.Android = &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				Title:       h.Title,
				Body:        h.Body,
				ChannelID:   svc.conf.AndroidChannelID,
				ClickAction: svc.conf.ClickAction,
				Tag:         h.ID,
				Sound:       "default",
				Visibility:  messaging.VisibilityPublic,
			},
		}
	case device.PlatformIOS:
		badge := 1
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriorityImmediate},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					MutableContent:   true,
					Alert: &messaging.ApsAlert{
						Title: h.Title,
						Body:  h.Body,
					},
					Badge: &badge,
					Sound: "default",
				},
			},
		}
	case device.PlatformWeb:
		msg.Webpush = &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: h.Title,
				Body:  h.Body,
				Icon:  svc.conf.WebIcon,
				Badge: svc.conf.WebBadge,
				Tag:   h.ID,
				Actions: []*messaging.WebpushNotificationAction{
					{Action: "open", Title: "Open"},
					{Action: "dismiss", Title: "Dismiss"},
				},
			},
		}
	}
	return msg
}

// LooksValid is a cheap sanity check of an FCM registration token ("<instance id>:APA91b...").
// It catches fabricated and test tokens before they reach the gateway.
func LooksValid(token string) bool {
	token = core.CleanString(token)
	return len(token) > 50 && strings.Contains(token, ":") && strings.Contains(token, "APA91b")
}
