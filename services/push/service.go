package pushsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
)

const (
	CodeTokenInvalid     = notification.CodeTokenInvalid
	CodeTokenMalformed   = notification.CodeTokenMalformed
	CodeGatewayTransient = notification.CodeGatewayTransient

	defaultBatchSize   = 100
	defaultCallTimeout = 10 * time.Second
	feedbackTimeout    = 5 * time.Second
)

var ErrMalformedToken = errors.New("registration token failed the sanity check")

// error strings of the gateway meaning the token will never work again
var unregisteredMarkers = []string{
	"registration-token-not-registered",
	"invalid-registration-token",
	"requested entity was not found",
	"not a valid fcm registration token",
}

type (
	// Feedback is told about tokens found dead or alive while sending.
	Feedback interface {
		Deactivate(ctx context.Context, tokens ...string) error
		MarkUsed(ctx context.Context, tokens []string, at time.Time) error
	}

	Observer interface {
		ObserveDelivery(d notification.Delivery)
	}

	Service struct {
		gateway  Gateway
		feedback Feedback
		observer Observer
		logger   core.Logger
		conf     core.PushConfig
	}
)

var _ notification.Pusher = (*Service)(nil)

func NewService(gateway Gateway, feedback Feedback, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		gateway:  gateway,
		feedback: feedback,
		logger:   logger,
		conf:     conf.Push,
	}
}

func (svc *Service) SetObserver(o Observer) {
	svc.observer = o
}

// Classify maps a gateway error to a delivery ErrorCode.
func Classify(err error) notification.ErrorCode {
	if err == nil {
		return ""
	}
	if messaging.IsUnregistered(err) {
		return CodeTokenInvalid
	}
	msg := strings.ToLower(errors.Cause(err).Error())
	for _, marker := range unregisteredMarkers {
		if strings.Contains(msg, marker) {
			return CodeTokenInvalid
		}
	}
	return CodeGatewayTransient
}

// SendToDevice sends ev to a single token.
func (svc *Service) SendToDevice(ctx context.Context, token string, platform device.Platform, ev notification.Event) notification.Delivery {
	d := svc.deliver(ctx, device.Token{Token: token, Platform: platform}, ev)
	svc.applyFeedback(ctx, []notification.Delivery{d})
	return d
}

// SendBulk sends ev to every token, a batch at a time. Sends within a batch run concurrently,
// batches are spaced by the configured delay. Tokens left over when ctx is done are reported as failed.
func (svc *Service) SendBulk(ctx context.Context, tokens []device.Token, ev notification.Event) notification.BulkResult {
	tokens = uniqueTokens(tokens)
	size := svc.conf.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	deliveries := make([]notification.Delivery, 0, len(tokens))
	for start := 0; start < len(tokens); start += size {
		if start > 0 && svc.conf.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(svc.conf.BatchDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			for _, tok := range tokens[start:] {
				deliveries = append(deliveries, notification.Delivery{
					UserID:   tok.UserID,
					Token:    tok.Token,
					Platform: tok.Platform,
					Code:     CodeGatewayTransient,
					Err:      err,
				})
			}
			svc.logger.Warn(fmt.Sprintf("bulk push interrupted: %d token(s) not attempted", len(tokens)-start), err)
			break
		}

		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]
		results := make([]notification.Delivery, len(batch))

		var wg sync.WaitGroup
		for i, tok := range batch {
			wg.Add(1)
			go func(i int, tok device.Token) {
				defer wg.Done()
				results[i] = svc.deliver(ctx, tok, ev)
			}(i, tok)
		}
		wg.Wait()
		deliveries = append(deliveries, results...)
	}

	svc.applyFeedback(ctx, deliveries)
	return notification.NewBulkResult(deliveries...)
}

func (svc *Service) deliver(ctx context.Context, tok device.Token, ev notification.Event) notification.Delivery {
	d := notification.Delivery{UserID: tok.UserID, Token: tok.Token, Platform: tok.Platform}
	defer func() {
		if svc.observer != nil {
			svc.observer.ObserveDelivery(d)
		}
	}()

	if svc.conf.ValidateTokens && !LooksValid(tok.Token) {
		d.Code = CodeTokenMalformed
		d.Err = ErrMalformedToken
		return d
	}

	timeout := svc.conf.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := svc.gateway.Send(callCtx, svc.BuildMessage(tok.Token, tok.Platform, ev))
	if err != nil {
		d.Code = Classify(err)
		d.Err = err
		if d.Code == CodeGatewayTransient {
			svc.logger.Warn(fmt.Sprintf("push to %s (%s) failed: %v", maskToken(tok.Token), tok.Platform, err), err)
		}
		return d
	}
	d.Success = true
	d.MessageID = id
	return d
}

// applyFeedback deactivates dead tokens and touches the live ones.
// It runs even if ctx is already done, under its own deadline.
func (svc *Service) applyFeedback(ctx context.Context, deliveries []notification.Delivery) {
	if svc.feedback == nil || len(deliveries) == 0 {
		return
	}

	var dead, alive []string
	for _, d := range deliveries {
		switch {
		case d.Success:
			alive = append(alive, d.Token)
		case d.Code.IsTokenFailure():
			dead = append(dead, d.Token)
		}
	}

	fbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedbackTimeout)
	defer cancel()

	if len(dead) > 0 {
		if err := svc.feedback.Deactivate(fbCtx, dead...); err != nil {
			svc.logger.Error(fmt.Sprintf("deactivating %d dead token(s): %v", len(dead), err), err)
		} else {
			svc.logger.Info(fmt.Sprintf("deactivated %d dead push token(s)", len(dead)))
		}
	}
	if len(alive) > 0 {
		if err := svc.feedback.MarkUsed(fbCtx, alive, time.Now().UTC()); err != nil {
			svc.logger.Warn(fmt.Sprintf("marking %d token(s) used: %v", len(alive), err), err)
		}
	}
}

func uniqueTokens(tokens []device.Token) []device.Token {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]device.Token, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.Token]; ok {
			continue
		}
		seen[tok.Token] = struct{}{}
		out = append(out, tok)
	}
	return out
}
