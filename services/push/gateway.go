package pushsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/masomo-chat/core"
)

// Gateway sends one message to one registration token and returns the gateway's message id.
type Gateway interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type FCMGateway struct {
	client *messaging.Client
}

var _ Gateway = (*FCMGateway)(nil)

func NewFCMGateway(ctx context.Context, conf *core.Config) (*FCMGateway, error) {
	var opts []option.ClientOption
	if conf.Push.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Push.CredentialsFile))
	}

	var fbConf *firebase.Config
	if conf.Push.ProjectID != "" {
		fbConf = &firebase.Config{ProjectID: conf.Push.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConf, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase messaging client")
	}
	return &FCMGateway{client: client}, nil
}

func (gw *FCMGateway) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	return gw.client.Send(ctx, msg)
}

// ConsoleGateway logs messages instead of sending them.
type ConsoleGateway struct {
	logger core.Logger

	mu   sync.Mutex
	sent []*messaging.Message
}

var _ Gateway = (*ConsoleGateway)(nil)

func NewConsoleGateway(logger core.Logger) *ConsoleGateway {
	return &ConsoleGateway{logger: logger}
}

func (gw *ConsoleGateway) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var title string
	if msg.Notification != nil {
		title = msg.Notification.Title
	}
	gw.logger.Info(fmt.Sprintf("push -> %s: %q %v", maskToken(msg.Token), title, msg.Data))

	gw.mu.Lock()
	gw.sent = append(gw.sent, msg)
	gw.mu.Unlock()
	return "console/" + uuid.NewString(), nil
}

func (gw *ConsoleGateway) Sent() []*messaging.Message {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]*messaging.Message(nil), gw.sent...)
}

// maskToken keeps registration tokens out of the logs.
func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-6:]
}
