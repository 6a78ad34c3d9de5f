package realtimesvc

import (
	"context"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Conn is a frame-oriented connection to one client.
type Conn interface {
	Read(ctx context.Context) (Frame, error)
	Write(ctx context.Context, f Frame) error
	Close(reason string) error
}

type wsConn struct {
	c *websocket.Conn
}

// NewWebsocketConn wraps an accepted websocket connection exchanging JSON frames.
func NewWebsocketConn(c *websocket.Conn) Conn {
	return &wsConn{c: c}
}

func (ws *wsConn) Read(ctx context.Context) (Frame, error) {
	var f Frame
	err := wsjson.Read(ctx, ws.c, &f)
	return f, err
}

func (ws *wsConn) Write(ctx context.Context, f Frame) error {
	return wsjson.Write(ctx, ws.c, f)
}

func (ws *wsConn) Close(reason string) error {
	return ws.c.Close(websocket.StatusNormalClosure, reason)
}
