package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	"github.com/trezcool/masomo-chat/core/notification"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
)

type fakeSockets struct {
	mu        sync.Mutex
	online    map[string]bool
	panicking map[string]bool
	got       map[string][]notification.Event
}

func (s *fakeSockets) Notify(userID string, ev notification.Event) bool {
	if s.panicking[userID] {
		panic("connection exploded")
	}
	if !s.online[userID] {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.got == nil {
		s.got = make(map[string][]notification.Event)
	}
	s.got[userID] = append(s.got[userID], ev)
	return true
}

type fakeTokens struct {
	mu      sync.Mutex
	byUser  map[string][]device.Token
	failing map[string]bool
	lookups int
}

func (f *fakeTokens) GetActiveTokens(_ context.Context, userID string) ([]device.Token, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	if f.failing[userID] {
		return nil, errors.New("database is down")
	}
	return f.byUser[userID], nil
}

type fakePusher struct {
	mu     sync.Mutex
	calls  int
	sent   []device.Token
	broken map[string]bool // token values
}

func (p *fakePusher) SendBulk(_ context.Context, tokens []device.Token, _ notification.Event) notification.BulkResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.sent = append(p.sent, tokens...)

	deliveries := make([]notification.Delivery, 0, len(tokens))
	for _, tok := range tokens {
		d := notification.Delivery{UserID: tok.UserID, Token: tok.Token, Platform: tok.Platform, Success: true}
		if p.broken[tok.Token] {
			d.Success = false
			d.Code = notification.CodeTokenInvalid
		}
		deliveries = append(deliveries, d)
	}
	return notification.NewBulkResult(deliveries...)
}

type recordingObserver struct {
	results []notification.Result
}

func (o *recordingObserver) ObserveFanOut(res notification.Result) {
	o.results = append(o.results, res)
}

func token(userID string, platform device.Platform, value string) device.Token {
	return device.Token{ID: value, UserID: userID, Platform: platform, Token: value, IsActive: true, CreatedAt: time.Now()}
}

func testEvent() notification.Event {
	return notification.Generic{Header: notification.NewHeader("Hello", "world", notification.PriorityHigh)}
}

type engineFixture struct {
	engine   *notification.Engine
	sockets  *fakeSockets
	tokens   *fakeTokens
	pusher   *fakePusher
	observer *recordingObserver
}

func newEngine() *engineFixture {
	f := &engineFixture{
		sockets: &fakeSockets{
			online:    map[string]bool{"alice": true, "carol": true},
			panicking: map[string]bool{"dave": true},
		},
		tokens: &fakeTokens{
			byUser: map[string][]device.Token{
				"alice": {token("alice", device.PlatformAndroid, "alice-android"), token("alice", device.PlatformIOS, "alice-ios")},
				"bob":   {token("bob", device.PlatformWeb, "bob-web")},
				"carol": {token("carol", device.PlatformAndroid, "carol-android")},
				"dave":  {token("dave", device.PlatformAndroid, "dave-android")},
			},
			failing: map[string]bool{"carol": true},
		},
		pusher:   &fakePusher{broken: map[string]bool{"bob-web": true}},
		observer: new(recordingObserver),
	}
	f.engine = notification.NewEngine(notification.EngineDeps{
		Sockets:  f.sockets,
		Tokens:   f.tokens,
		Pusher:   f.pusher,
		Observer: f.observer,
		Logger:   logsvc.NewDiscard(core.NewTestConfig()),
	})
	return f
}

func TestEngine_FanOut(t *testing.T) {
	f := newEngine()
	ev := testEvent()

	res := f.engine.FanOut(context.Background(), []string{"alice", "bob", "carol", "dave", "erin", "alice"}, ev)

	assert.Equal(t, ev.Envelope().ID, res.EventID)
	assert.Equal(t, notification.KindGeneric, res.Kind)

	tests := []struct {
		name string
		user string
		want notification.RecipientResult
	}{
		{name: "both channels", user: "alice", want: notification.RecipientResult{SocketSent: true, PushSent: 2}},
		{name: "offline with a dead token", user: "bob", want: notification.RecipientResult{PushFailed: 1}},
		{name: "token lookup failed", user: "carol", want: notification.RecipientResult{SocketSent: true}},
		{name: "socket panicked", user: "dave", want: notification.RecipientResult{PushSent: 1}},
		{name: "no channel at all", user: "erin", want: notification.RecipientResult{}},
	}
	require.Len(t, res.PerRecipient, len(tests))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, res.PerRecipient[tt.user])
		})
	}

	assert.ElementsMatch(t, []string{"bob", "erin"}, res.Unreached())
	socket, sent, failed := res.Totals()
	assert.Equal(t, 2, socket)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 1, failed)

	assert.Equal(t, 1, f.pusher.calls, "every token goes through a single bulk send")
	assert.Len(t, f.pusher.sent, 4)
	assert.Len(t, f.sockets.got["alice"], 1, "duplicate recipients are notified once")
	require.Len(t, f.observer.results, 1)
	assert.Equal(t, res.EventID, f.observer.results[0].EventID)
}

func TestEngine_FanOut_noRecipients(t *testing.T) {
	f := newEngine()

	res := f.engine.FanOut(context.Background(), nil, testEvent())
	assert.Empty(t, res.PerRecipient)
	assert.Empty(t, res.Unreached())
	assert.Zero(t, f.pusher.calls)
	assert.Zero(t, f.tokens.lookups)
}

func TestEngine_FanOut_noTokens(t *testing.T) {
	f := newEngine()

	res := f.engine.FanOut(context.Background(), []string{"erin", "frank"}, testEvent())
	assert.Len(t, res.PerRecipient, 2)
	assert.Zero(t, f.pusher.calls, "no bulk send without tokens")
}

func TestEngine_Broadcast(t *testing.T) {
	f := newEngine()

	res := f.engine.Broadcast(context.Background(), []string{"alice", "bob", "dave"}, testEvent())

	assert.Equal(t, notification.RecipientResult{SocketSent: true}, res.PerRecipient["alice"])
	assert.Equal(t, notification.RecipientResult{}, res.PerRecipient["bob"])
	assert.Equal(t, notification.RecipientResult{}, res.PerRecipient["dave"])
	assert.ElementsMatch(t, []string{"bob", "dave"}, res.Unreached())

	assert.Zero(t, f.tokens.lookups, "broadcasts never look tokens up")
	assert.Zero(t, f.pusher.calls, "broadcasts never push")
	assert.Len(t, f.observer.results, 1)
}

// slowSockets takes delay to deliver to any user.
type slowSockets struct{ delay time.Duration }

func (s slowSockets) Notify(string, notification.Event) bool {
	time.Sleep(s.delay)
	return true
}

func TestEngine_Broadcast_slowSockets(t *testing.T) {
	delay := 200 * time.Millisecond
	engine := notification.NewEngine(notification.EngineDeps{
		Sockets: slowSockets{delay: delay},
		Logger:  logsvc.NewDiscard(core.NewTestConfig()),
	})
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}

	start := time.Now()
	res := engine.Broadcast(context.Background(), users, testEvent())
	elapsed := time.Since(start)

	socket, _, _ := res.Totals()
	assert.Equal(t, len(users), socket)
	assert.Less(t, int64(elapsed), int64(3*delay), "recipients are notified concurrently")
}

func TestEngine_withoutSockets(t *testing.T) {
	f := newEngine()
	engine := notification.NewEngine(notification.EngineDeps{
		Tokens: f.tokens,
		Pusher: f.pusher,
		Logger: logsvc.NewDiscard(core.NewTestConfig()),
	})

	res := engine.FanOut(context.Background(), []string{"alice"}, testEvent())
	assert.Equal(t, notification.RecipientResult{PushSent: 2}, res.PerRecipient["alice"])
}

func TestEvent_Payload(t *testing.T) {
	approvedAt := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	ev := notification.MessageApproved{
		Header:     notification.NewHeader("New message", "Field trip", ""),
		MessageID:  "m1",
		ThreadID:   "t1",
		SenderID:   "teacher",
		ApproverID: "principal",
		Content:    "Field trip on Friday",
		ApprovedAt: approvedAt,
	}
	assert.Equal(t, notification.PriorityHigh, ev.Priority, "priority defaults to high")

	p := ev.Payload()
	assert.Equal(t, "message_approved", p["type"])
	assert.Equal(t, ev.ID, p["event_id"])
	assert.Equal(t, "m1", p["message_id"])
	assert.Equal(t, "principal", p["approved_by"])
	assert.Equal(t, approvedAt, p["approved_at"])

	generic := notification.Generic{
		Header: notification.NewHeader("Test", "ping", notification.PriorityNormal),
		Extra:  map[string]interface{}{"test": true, "type": "overridden"},
	}
	gp := generic.Payload()
	assert.Equal(t, true, gp["test"])
	assert.Equal(t, "generic", gp["type"], "common fields win over extras")
}
