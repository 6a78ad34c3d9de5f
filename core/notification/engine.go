package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
)

const defaultCallTimeout = 10 * time.Second

type (
	// Sockets delivers to a user's live realtime sessions, if any.
	// Notify never blocks on slow connections and reports whether at least one session took the event.
	Sockets interface {
		Notify(userID string, ev Event) bool
	}

	TokenSource interface {
		GetActiveTokens(ctx context.Context, userID string) ([]device.Token, error)
	}

	Pusher interface {
		SendBulk(ctx context.Context, tokens []device.Token, ev Event) BulkResult
	}

	Observer interface {
		ObserveFanOut(res Result)
	}

	RecipientResult struct {
		SocketSent bool `json:"socket_sent"`
		PushSent   int  `json:"push_sent"`
		PushFailed int  `json:"push_failed"`
	}

	Result struct {
		EventID      string                     `json:"event_id"`
		Kind         Kind                       `json:"kind"`
		PerRecipient map[string]RecipientResult `json:"per_recipient"`
	}

	EngineDeps struct {
		Sockets     Sockets
		Tokens      TokenSource
		Pusher      Pusher
		Observer    Observer // optional
		Logger      core.Logger
		CallTimeout time.Duration
	}

	// Engine fans events out to realtime sessions and push tokens.
	Engine struct {
		sockets     Sockets
		tokens      TokenSource
		pusher      Pusher
		observer    Observer
		logger      core.Logger
		callTimeout time.Duration
	}
)

// Reached reports whether the recipient got the event on at least one channel.
func (r RecipientResult) Reached() bool {
	return r.SocketSent || r.PushSent > 0
}

// Unreached lists the recipients that got the event on no channel.
func (res Result) Unreached() []string {
	var ids []string
	for uid, r := range res.PerRecipient {
		if !r.Reached() {
			ids = append(ids, uid)
		}
	}
	return ids
}

func (res Result) Totals() (socket, pushSent, pushFailed int) {
	for _, r := range res.PerRecipient {
		if r.SocketSent {
			socket++
		}
		pushSent += r.PushSent
		pushFailed += r.PushFailed
	}
	return
}

func NewEngine(deps EngineDeps) *Engine {
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Engine{
		sockets:     deps.Sockets,
		tokens:      deps.Tokens,
		pusher:      deps.Pusher,
		observer:    deps.Observer,
		logger:      deps.Logger,
		callTimeout: timeout,
	}
}

func newResult(ev Event, recipients []string) Result {
	res := Result{
		EventID:      ev.Envelope().ID,
		Kind:         ev.Kind(),
		PerRecipient: make(map[string]RecipientResult, len(recipients)),
	}
	for _, uid := range recipients {
		res.PerRecipient[uid] = RecipientResult{}
	}
	return res
}

// FanOut delivers ev to every recipient over both channels independently.
// Socket sends and token lookups run concurrently per recipient; every token found then goes through
// a single bulk push. Failures are counted, logged and never retried.
func (e *Engine) FanOut(ctx context.Context, recipients []string, ev Event) Result {
	recipients = core.Unique(recipients)
	res := newResult(ev, recipients)
	if len(recipients) == 0 {
		return res
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		tokens []device.Token
	)
	for _, uid := range recipients {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			sent := e.notifySocket(uid, ev)
			toks := e.lookupTokens(ctx, uid)

			mu.Lock()
			defer mu.Unlock()
			r := res.PerRecipient[uid]
			r.SocketSent = sent
			res.PerRecipient[uid] = r
			tokens = append(tokens, toks...)
		}(uid)
	}
	wg.Wait()

	if len(tokens) > 0 {
		owners := make(map[string]string, len(tokens))
		for _, tok := range tokens {
			owners[tok.Token] = tok.UserID
		}
		bulk := e.pusher.SendBulk(ctx, tokens, ev)
		for token, d := range bulk.PerToken {
			uid, ok := owners[token]
			if !ok {
				continue
			}
			r := res.PerRecipient[uid]
			if d.Success {
				r.PushSent++
			} else {
				r.PushFailed++
			}
			res.PerRecipient[uid] = r
		}
	}

	e.report(res)
	return res
}

// Broadcast is the socket-only variant of FanOut. It never touches push tokens.
func (e *Engine) Broadcast(_ context.Context, recipients []string, ev Event) Result {
	recipients = core.Unique(recipients)
	res := newResult(ev, recipients)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, uid := range recipients {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if e.notifySocket(uid, ev) {
				mu.Lock()
				res.PerRecipient[uid] = RecipientResult{SocketSent: true}
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()

	e.report(res)
	return res
}

func (e *Engine) notifySocket(uid string, ev Event) (sent bool) {
	if e.sockets == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(fmt.Sprintf("socket notify panicked for user %s: %v", uid, r))
			sent = false
		}
	}()
	return e.sockets.Notify(uid, ev)
}

func (e *Engine) lookupTokens(ctx context.Context, uid string) []device.Token {
	if e.tokens == nil || e.pusher == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	toks, err := e.tokens.GetActiveTokens(callCtx, uid)
	if err != nil {
		e.logger.Warn(fmt.Sprintf("looking up device tokens of user %s: %v", uid, err), err)
		return nil
	}
	return toks
}

func (e *Engine) report(res Result) {
	if e.observer != nil {
		e.observer.ObserveFanOut(res)
	}
	socket, sent, failed := res.Totals()
	e.logger.Debug(fmt.Sprintf(
		"fan-out %s (%s): recipients=%d socket=%d push_sent=%d push_failed=%d unreached=%d",
		res.Kind, res.EventID, len(res.PerRecipient), socket, sent, failed, len(res.Unreached()),
	))
}
