package realtimesvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one live connection of a user. A user may hold several.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn Conn
	hub  *Hub
	send chan Frame
	done chan struct{}

	mu         sync.RWMutex
	subscribed bool
	closeOnce  sync.Once
}

func newSession(hub *Hub, userID string, conn Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		hub:         hub,
		send:        make(chan Frame, buffer),
		done:        make(chan struct{}),
		subscribed:  true,
	}
}

func (s *Session) Subscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

func (s *Session) setSubscribed(v bool) {
	s.mu.Lock()
	s.subscribed = v
	s.mu.Unlock()
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// enqueue queues f without blocking. Frames are dropped when the queue is full or the session closed.
func (s *Session) enqueue(f Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	default:
		s.hub.logger.Warn(fmt.Sprintf("realtime session %s of user %s is slow: dropping %s frame", s.ID, s.UserID, f.Type))
		return false
	}
}

func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(reason)
	})
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), s.hub.conf.WriteTimeout)
			err := s.conn.Write(ctx, f)
			cancel()
			if err != nil {
				s.hub.unregister(s, fmt.Sprintf("write failed: %v", err))
				return
			}
		}
	}
}

// readLoop handles client frames until the connection fails, ctx is done
// or no frame arrives within the heartbeat timeout. It returns why it stopped.
func (s *Session) readLoop(ctx context.Context) string {
	for {
		readCtx, cancel := context.WithTimeout(ctx, s.hub.conf.HeartbeatTimeout)
		f, err := s.conn.Read(readCtx)
		timedOut := readCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err != nil {
			if timedOut {
				return "heartbeat timeout"
			}
			return "connection closed"
		}

		switch f.Type {
		case FramePing, FrameHeartbeat:
			s.enqueue(pongFrame(time.Now()))
		case FrameSubscribe:
			s.setSubscribed(true)
		case FrameUnsubscribe:
			s.setSubscribed(false)
		default:
			s.hub.logger.Debug(fmt.Sprintf("realtime session %s: ignoring %q frame", s.ID, f.Type))
		}
	}
}
