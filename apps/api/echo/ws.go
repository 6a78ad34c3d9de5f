package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/trezcool/masomo-chat/core"
	realtimesvc "github.com/trezcool/masomo-chat/services/realtime"
)

type realtimeApi struct {
	hub    *realtimesvc.Hub
	opts   *websocket.AcceptOptions
	logger core.Logger
}

func registerRealtimeAPI(app *echo.Echo, jwt echo.MiddlewareFunc, hub *realtimesvc.Hub, conf core.RealtimeConfig, logger core.Logger) {
	api := realtimeApi{
		hub: hub,
		opts: &websocket.AcceptOptions{
			OriginPatterns:     conf.AllowedOrigins,
			InsecureSkipVerify: conf.InsecureOrigins,
		},
		logger: logger,
	}
	app.GET("/ws", api.connect, jwt)
}

// connect upgrades the request and serves the session until the client leaves.
func (api *realtimeApi) connect(ctx echo.Context) error {
	id, err := getIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	c, err := websocket.Accept(ctx.Response(), ctx.Request(), api.opts)
	if err != nil {
		// Accept has already written the error response
		api.logger.Debug(fmt.Sprintf("websocket upgrade for user %s failed: %v", id.ID, err))
		return nil
	}

	s, err := api.hub.Register(id.ID, realtimesvc.NewWebsocketConn(c))
	if err != nil {
		return nil
	}
	api.hub.Serve(ctx.Request().Context(), s)
	return nil
}
