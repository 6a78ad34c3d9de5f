package realtimesvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/notification"
)

var ErrHubClosed = errors.New("realtime hub is closed")

// Relay forwards frames to the hubs of other instances.
type Relay interface {
	Publish(ctx context.Context, userIDs []string, f Frame) error
}

type relayJob struct {
	userIDs []string
	frame   Frame
}

// Hub tracks the live sessions of every connected user.
type Hub struct {
	conf   core.RealtimeConfig
	logger core.Logger
	relay  Relay

	// relayed frames wait here for the single publisher goroutine
	relayQueue chan relayJob
	stop       chan struct{}

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	closed   bool
}

var _ notification.Sockets = (*Hub)(nil)

func NewHub(conf *core.Config, logger core.Logger) *Hub {
	rc := conf.Realtime
	if rc.HeartbeatTimeout <= 0 {
		rc.HeartbeatTimeout = 60 * time.Second
	}
	if rc.WriteTimeout <= 0 {
		rc.WriteTimeout = 10 * time.Second
	}
	if rc.SendBuffer <= 0 {
		rc.SendBuffer = 64
	}
	if rc.RelayBuffer <= 0 {
		rc.RelayBuffer = 256
	}
	return &Hub{
		conf:       rc,
		logger:     logger,
		relayQueue: make(chan relayJob, rc.RelayBuffer),
		stop:       make(chan struct{}),
		sessions:   make(map[string]map[*Session]struct{}),
	}
}

// SetRelay starts publishing frames to r. It must be called at most once.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.relay != nil || h.closed {
		return
	}
	h.relay = r
	go h.publishLoop(r)
}

// Register adds a session for the user, starts its writer and greets the client.
func (h *Hub) Register(userID string, conn Conn) (*Session, error) {
	s := newSession(h, userID, conn, h.conf.SendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close("server shutting down")
		return nil, ErrHubClosed
	}
	userSessions, ok := h.sessions[userID]
	if !ok {
		userSessions = make(map[*Session]struct{})
		h.sessions[userID] = userSessions
	}
	userSessions[s] = struct{}{}
	h.mu.Unlock()

	go s.writeLoop()
	s.enqueue(Frame{
		Type: FrameConnectionEstablished,
		Data: map[string]interface{}{
			"session_id": s.ID,
			"user_id":    userID,
			"timestamp":  s.ConnectedAt,
		},
	})
	h.logger.Debug(fmt.Sprintf("realtime session %s opened for user %s", s.ID, userID))
	return s, nil
}

// Serve reads the session's client frames until it ends, then unregisters it.
func (h *Hub) Serve(ctx context.Context, s *Session) {
	reason := s.readLoop(ctx)
	h.unregister(s, reason)
}

func (h *Hub) Unregister(s *Session) {
	h.unregister(s, "session closed")
}

func (h *Hub) unregister(s *Session, reason string) {
	h.mu.Lock()
	if userSessions, ok := h.sessions[s.UserID]; ok {
		delete(userSessions, s)
		if len(userSessions) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()

	s.close(reason)
	h.logger.Debug(fmt.Sprintf("realtime session %s of user %s closed: %s", s.ID, s.UserID, reason))
}

func (h *Hub) userSessions(userID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// DeliverLocal queues f on the user's sessions of this instance.
// Notification frames skip sessions that unsubscribed from notifications.
func (h *Hub) DeliverLocal(userID string, f Frame) bool {
	var sent bool
	for _, s := range h.userSessions(userID) {
		if f.Type == FrameNotification && !s.Subscribed() {
			continue
		}
		if s.enqueue(f) {
			sent = true
		}
	}
	return sent
}

// SendToUser delivers f to the user's sessions and reports whether a local session took it.
// Other instances get it through the relay, if any.
func (h *Hub) SendToUser(userID string, f Frame) bool {
	sent := h.DeliverLocal(userID, f)
	h.publish([]string{userID}, f)
	return sent
}

// BroadcastToUsers delivers f to every user and returns how many were reached locally.
func (h *Hub) BroadcastToUsers(userIDs []string, f Frame) int {
	userIDs = core.Unique(userIDs)
	var reached int
	for _, uid := range userIDs {
		if h.DeliverLocal(uid, f) {
			reached++
		}
	}
	h.publish(userIDs, f)
	return reached
}

func (h *Hub) Notify(userID string, ev notification.Event) bool {
	return h.SendToUser(userID, notificationFrame(ev))
}

// publish queues f for the relay without waiting on it. Frames are dropped while the queue is full.
func (h *Hub) publish(userIDs []string, f Frame) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil || len(userIDs) == 0 {
		return
	}

	select {
	case h.relayQueue <- relayJob{userIDs: userIDs, frame: f}:
	default:
		h.logger.Warn(fmt.Sprintf("relay queue full, dropping %s frame for %d user(s)", f.Type, len(userIDs)))
	}
}

func (h *Hub) publishLoop(relay Relay) {
	for {
		select {
		case <-h.stop:
			return
		case job := <-h.relayQueue:
			ctx, cancel := context.WithTimeout(context.Background(), h.conf.WriteTimeout)
			if err := relay.Publish(ctx, job.userIDs, job.frame); err != nil {
				h.logger.Warn(fmt.Sprintf("relaying %s frame: %v", job.frame.Type, err), err)
			}
			cancel()
		}
	}
}

// IsConnected reports whether the user has a live session on this instance.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Stats returns the number of connected users and sessions.
func (h *Hub) Stats() (users, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ss := range h.sessions {
		sessions += len(ss)
	}
	return len(h.sessions), sessions
}

// Close closes every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.stop)
	all := make([]*Session, 0)
	for _, ss := range h.sessions {
		for s := range ss {
			all = append(all, s)
		}
	}
	h.sessions = make(map[string]map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.close("server shutting down")
	}
	h.logger.Info(fmt.Sprintf("realtime hub closed %d session(s)", len(all)))
}
